package registry

import "sync"

// memoryBackend keeps sites in maps. Values are cloned on the way in and out.
type memoryBackend struct {
	mu    sync.RWMutex
	sites map[string]*Site
	lists map[list]map[string][]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		sites: make(map[string]*Site),
		lists: map[list]map[string][]string{
			listDiscovered: make(map[string][]string),
			listPages:      make(map[string][]string),
		},
	}
}

func (m *memoryBackend) get(domain string) (*Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	site, ok := m.sites[domain]
	if !ok {
		return nil, ErrSiteNotFound
	}
	return site.clone(), nil
}

func (m *memoryBackend) all() ([]*Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sites := make([]*Site, 0, len(m.sites))
	for _, site := range m.sites {
		sites = append(sites, site.clone())
	}
	return sites, nil
}

func (m *memoryBackend) create(site *Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[site.Domain]; ok {
		return ErrSiteExists
	}
	m.sites[site.Domain] = site.clone()
	return nil
}

func (m *memoryBackend) update(domain string, fn func(*Site) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[domain]
	if !ok {
		return ErrSiteNotFound
	}
	updated := site.clone()
	if err := fn(updated); err != nil {
		return err
	}
	m.sites[domain] = updated
	return nil
}

func (m *memoryBackend) remove(domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[domain]; !ok {
		return ErrSiteNotFound
	}
	delete(m.sites, domain)
	for _, urls := range m.lists {
		delete(urls, domain)
	}
	return nil
}

func (m *memoryBackend) putList(l list, domain string, urls []string, fn func(*Site)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[domain]
	if !ok {
		return ErrSiteNotFound
	}
	m.lists[l][domain] = append([]string(nil), urls...)
	fn(site)
	return nil
}

func (m *memoryBackend) getList(l list, domain string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sites[domain]; !ok {
		return nil, ErrSiteNotFound
	}
	return append([]string{}, m.lists[l][domain]...), nil
}

func (m *memoryBackend) close() error {
	return nil
}
