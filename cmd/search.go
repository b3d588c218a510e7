package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/ferrisfind/internal/config"
	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/indexfile"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
	"github.com/jcdickinson/ferrisfind/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search loaded rustdoc indexes",
	Long: `Search by name, path, or function signature.

  vec                   fuzzy name match
  std::vec::Vec         path match
  fn:push               restrict to one item kind
  "Vec"                 exact name
  u8, usize -> bool     functions by signature
  -> string             functions by return type`,
	Example: `  ferrisfind search spawn
  ferrisfind search --crate std "fn:from_str"
  ferrisfind search --index target/doc/search-index.js "&str -> result"`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

var (
	searchIndexes      []string
	searchCrate        string
	searchCurrentCrate string
	searchLimit        int
	searchOutput       string
)

func init() {
	searchCmd.Flags().StringSliceVar(&searchIndexes, "index", nil, "search these index files in-process instead of asking the daemon (repeatable)")
	searchCmd.Flags().StringVar(&searchCrate, "crate", "", "restrict results to one crate")
	searchCmd.Flags().StringVar(&searchCurrentCrate, "current-crate", "", "rank this crate's items ahead of equal matches")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results per tab (default from config)")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "text", "output format: text, json, or yaml")
}

func runSearch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if searchLimit <= 0 {
		searchLimit = cfg.Search.Limit
	}
	req := rpc.SearchRequest{
		Query:        args[0],
		Crate:        searchCrate,
		CurrentCrate: searchCurrentCrate,
	}

	var (
		resp *rpc.SearchResponse
		err  error
	)
	if len(searchIndexes) > 0 {
		resp, err = searchFiles(cfg, searchIndexes, req)
	} else {
		resp, err = searchDaemon(req)
	}
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	if searchOutput == "text" {
		writeText(os.Stdout, resp, req.Crate, searchLimit)
		return
	}
	trimResults(resp, searchLimit)
	if err := writeStructured(os.Stdout, searchOutput, resp); err != nil {
		log.Fatal(err)
	}
}

func searchDaemon(req rpc.SearchRequest) (*rpc.SearchResponse, error) {
	client, err := connectDaemon()
	if err != nil {
		return nil, fmt.Errorf("connecting to daemon: %w", err)
	}
	defer client.Close()
	return client.Search(context.Background(), req)
}

// searchFiles builds a throwaway index from files on disk. Later files
// replace crates of the same name, as the daemon does.
func searchFiles(cfg *config.Config, paths []string, req rpc.SearchRequest) (*rpc.SearchResponse, error) {
	var crates []index.RawCrate
	pos := map[string]int{}
	for _, p := range paths {
		loaded, err := indexfile.Load(p)
		if err != nil {
			return nil, err
		}
		for _, c := range loaded {
			if i, ok := pos[c.Name]; ok {
				crates[i] = c
				continue
			}
			pos[c.Name] = len(crates)
			crates = append(crates, c)
		}
	}

	if req.CurrentCrate == "" {
		req.CurrentCrate = cfg.Search.CurrentCrate
	}
	searcher := search.NewSearcher(index.Build(crates), search.Options{RootPath: cfg.Search.RootPath})
	resp := searcher.Search(req.Query, search.Filter{
		Crate:        req.Crate,
		CurrentCrate: req.CurrentCrate,
	})
	return &resp, nil
}

func trimResults(resp *rpc.SearchResponse, limit int) {
	if limit <= 0 {
		return
	}
	for _, list := range []*[]rpc.ItemResult{&resp.InArgs, &resp.Returned, &resp.Others} {
		if len(*list) > limit {
			*list = (*list)[:limit]
		}
	}
}
