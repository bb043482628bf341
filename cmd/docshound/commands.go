package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/docs-hound/docshound/internal/docstore"
	"github.com/docs-hound/docshound/internal/registry"
	"github.com/docs-hound/docshound/internal/scope"
	"github.com/docs-hound/docshound/internal/state"
)

func newAddCmd() *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Register a documentation site",
		Long:  "Register a documentation site. The site is keyed by the URL's hostname.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				site, err := a.registry.AddSite(a.ctx(), args[0], name, description)
				if err != nil {
					return err
				}
				return a.out.WriteSite(site)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name (default: the domain)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Short description")

	return cmd
}

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List registered sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				sites, err := a.registry.ListSites(a.ctx())
				if err != nil {
					return err
				}
				return a.out.WriteSites(sites)
			})
		},
	}
}

func newSiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "site [domain]",
		Short: "Show one site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				site, err := a.registry.GetSite(a.ctx(), args[0])
				if err != nil {
					return siteError(args[0], err)
				}
				return a.out.WriteSite(site)
			})
		},
	}
}

func newFiltersCmd() *cobra.Command {
	var include, exclude []string
	var reset bool

	cmd := &cobra.Command{
		Use:   "filters [domain]",
		Short: "Set the URL filters applied during discovery",
		Long: `Set the URL filters applied during discovery.

Exclude patterns stop matching URLs from being crawled. Include patterns
keep only matching URLs in the discovered set. Patterns are regular
expressions matched against the full URL. Without flags the current
filters are shown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			return withApp(cmd, true, func(a *app) error {
				site, err := a.registry.GetSite(a.ctx(), domain)
				if err != nil {
					return siteError(domain, err)
				}

				filters := site.URLFilters
				flags := cmd.Flags()
				if reset {
					filters = registry.URLFilters{}
				}
				if flags.Changed("include") {
					filters.IncludePatterns = include
				}
				if flags.Changed("exclude") {
					filters.ExcludePatterns = exclude
				}

				if reset || flags.Changed("include") || flags.Changed("exclude") {
					if err := a.registry.SetURLFilters(a.ctx(), domain, filters); err != nil {
						return err
					}
					if site, err = a.registry.GetSite(a.ctx(), domain); err != nil {
						return err
					}
				}
				return a.out.WriteSite(site)
			})
		},
	}

	cmd.Flags().StringArrayVar(&include, "include", nil, "URL patterns to keep (regex, repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "URL patterns to skip (regex, repeatable)")
	cmd.Flags().BoolVar(&reset, "clear", false, "Remove all filters first")

	return cmd
}

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover [domain]",
		Short: "Map the pages of a registered site",
		Long: `Crawl a registered site from its base URL and record the pages found.
No content is stored; run "index" afterwards.

With --sitemap the pages listed in the site's sitemaps (and those named in
robots.txt) are crawled as well, which finds pages no link points to.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				res, err := a.pipeline.Discover(a.ctx(), args[0])
				if err != nil {
					return siteError(args[0], err)
				}
				return a.out.WriteDiscover(res)
			})
		},
	}

	cmd.Flags().BoolVar(&useSitemaps, "sitemap", false, "Also seed from the site's sitemaps")

	return cmd
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index [domain] [urls...]",
		Short: "Fetch, extract and store the pages of a site",
		Long: `Fetch the given pages, extract their article content and store it for
search. Without URLs the pages found by the last discovery are indexed.
Documents previously stored for the site are replaced.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				res, err := a.pipeline.Index(a.ctx(), args[0], args[1:])
				if err != nil {
					return siteError(args[0], err)
				}
				return a.out.WriteIndex(res)
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	var source string
	var limit int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search indexed documentation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return withApp(cmd, true, func(a *app) error {
				results, err := a.pipeline.Search(a.ctx(), query, source, limit)
				if err != nil {
					return err
				}
				return a.out.WriteSearch(query, results)
			})
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Only search this site's documents")
	cmd.Flags().IntVarP(&limit, "limit", "l", docstore.DefaultSearchLimit, "Maximum number of results")

	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove [domain]",
		Short: "Remove a site and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			return withApp(cmd, true, func(a *app) error {
				if _, err := a.registry.GetSite(a.ctx(), domain); err != nil {
					return siteError(domain, err)
				}
				removed, err := a.store.DeleteBySource(a.ctx(), domain)
				if err != nil {
					return fmt.Errorf("failed to delete documents: %w", err)
				}
				if err := a.registry.RemoveSite(a.ctx(), domain); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Removed %s and %d documents\n", domain, removed)
				return nil
			})
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [url]",
		Short: "Print an indexed page",
		Long:  "Print the stored title, source and extracted content of an indexed page.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *app) error {
				domain, err := scope.ExtractDomain(args[0])
				if err != nil {
					return fmt.Errorf("invalid url %q: %w", args[0], err)
				}
				doc, err := a.store.Get(a.ctx(), state.Normalize(args[0]), domain)
				if err != nil {
					if errors.Is(err, docstore.ErrNotFound) {
						return fmt.Errorf("%w: %s (index it with \"docshound index\")", err, args[0])
					}
					return err
				}
				return a.out.WriteDocument(doc)
			})
		},
	}
}

// siteError points at "add" when domain is not registered.
func siteError(domain string, err error) error {
	if errors.Is(err, registry.ErrSiteNotFound) {
		return fmt.Errorf("%w: %s (register it with \"docshound add\")", err, domain)
	}
	return err
}
