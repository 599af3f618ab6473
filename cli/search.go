package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"library-desk/catalog"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search the Google Books catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		client := catalog.NewClient(
			catalog.WithBaseURL(cfg.BaseURL),
			catalog.WithTimeout(cfg.Timeout),
			catalog.WithRateLimit(cfg.RatePerSecond),
			catalog.WithMaxRetries(uint64(cfg.MaxRetries)),
			catalog.WithLogger(log),
		)

		var cache *catalog.Cache
		if noCache, _ := cmd.Flags().GetBool("no-cache"); !noCache {
			var err error
			cache, err = catalog.NewCache(cfg.CachePath, cfg.CacheTTL)
			if err != nil {
				log.WithError(err).Warn("catalog cache unavailable, searching without it")
			} else {
				defer cache.Close()
				if n, err := cache.Purge(); err != nil {
					log.WithError(err).Warn("failed to purge expired catalog searches")
				} else if n > 0 {
					log.WithField("removed", n).Debug("purged expired catalog searches")
				}
			}
		}
		svc := catalog.NewService(client, cache, log)

		// Retries may take several timeouts before giving up.
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout*time.Duration(cfg.MaxRetries+1)+5*time.Second)
		defer cancel()

		fmt.Fprintf(out, "Searching for %q...\n", query)
		outcome := <-svc.SearchAsync(ctx, query)
		if outcome.Err != nil {
			return fmt.Errorf("search failed: %w", outcome.Err)
		}

		res := outcome.Result
		if len(res.Volumes) == 0 {
			fmt.Fprintln(out, "No books found.")
			return nil
		}
		source := "catalog"
		if res.Cached {
			source = "cache"
		}
		fmt.Fprintf(out, "Showing %d of %d results (from %s):\n\n", len(res.Volumes), res.TotalItems, source)
		for i, v := range res.Volumes {
			fmt.Fprintf(out, "%d. %s\n", i+1, v.Title)
			fmt.Fprintf(out, "   Author(s): %s\n", v.AuthorList())
			fmt.Fprintf(out, "   Publisher: %s\n", v.Publisher)
			fmt.Fprintf(out, "   Published: %s\n", v.PublishedDate)
			fmt.Fprintf(out, "   %s\n\n", v.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Bool("no-cache", false, "always query the remote catalog")
}
