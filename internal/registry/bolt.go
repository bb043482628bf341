package registry

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSites      = []byte("sites")
	bucketDiscovered = []byte("site_discovered")
	bucketPages      = []byte("site_pages")
)

// boltBackend stores each site as JSON keyed by domain, with its URL lists
// in separate buckets under the same key.
type boltBackend struct {
	db *bolt.DB
}

func newBoltBackend(db *bolt.DB) (*boltBackend, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketSites, bucketDiscovered, bucketPages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &boltBackend{db: db}, nil
}

func listBucket(l list) []byte {
	if l == listPages {
		return bucketPages
	}
	return bucketDiscovered
}

func readSite(tx *bolt.Tx, domain string) (*Site, error) {
	data := tx.Bucket(bucketSites).Get([]byte(domain))
	if data == nil {
		return nil, ErrSiteNotFound
	}
	var site Site
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site %s: %w", domain, err)
	}
	return &site, nil
}

func writeSite(tx *bolt.Tx, site *Site) error {
	data, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("failed to marshal site %s: %w", site.Domain, err)
	}
	return tx.Bucket(bucketSites).Put([]byte(site.Domain), data)
}

func (b *boltBackend) get(domain string) (*Site, error) {
	var site *Site
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		site, err = readSite(tx, domain)
		return err
	})
	return site, err
}

func (b *boltBackend) all() ([]*Site, error) {
	var sites []*Site
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSites).ForEach(func(k, v []byte) error {
			var site Site
			if err := json.Unmarshal(v, &site); err != nil {
				return fmt.Errorf("failed to unmarshal site %s: %w", k, err)
			}
			sites = append(sites, &site)
			return nil
		})
	})
	return sites, err
}

func (b *boltBackend) create(site *Site) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSites).Get([]byte(site.Domain)) != nil {
			return ErrSiteExists
		}
		return writeSite(tx, site)
	})
}

func (b *boltBackend) update(domain string, fn func(*Site) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		site, err := readSite(tx, domain)
		if err != nil {
			return err
		}
		if err := fn(site); err != nil {
			return err
		}
		return writeSite(tx, site)
	})
}

func (b *boltBackend) remove(domain string) error {
	key := []byte(domain)
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSites).Get(key) == nil {
			return ErrSiteNotFound
		}
		for _, name := range [][]byte{bucketSites, bucketDiscovered, bucketPages} {
			if err := tx.Bucket(name).Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBackend) putList(l list, domain string, urls []string, fn func(*Site)) error {
	data, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("failed to marshal %s URLs: %w", l, err)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		site, err := readSite(tx, domain)
		if err != nil {
			return err
		}
		if err := tx.Bucket(listBucket(l)).Put([]byte(domain), data); err != nil {
			return err
		}
		fn(site)
		return writeSite(tx, site)
	})
}

func (b *boltBackend) getList(l list, domain string) ([]string, error) {
	urls := []string{}
	err := b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketSites).Get([]byte(domain)) == nil {
			return ErrSiteNotFound
		}
		data := tx.Bucket(listBucket(l)).Get([]byte(domain))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &urls)
	})
	if err != nil {
		return nil, err
	}
	return urls, nil
}

func (b *boltBackend) close() error {
	return b.db.Close()
}
