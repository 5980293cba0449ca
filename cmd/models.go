package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/surveyloom-cli/internal/ai"
	"github.com/KaramelBytes/surveyloom-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect the model catalog used for cost estimates",
	Example: `  surveyloom models show
  surveyloom models show --provider ollama
  surveyloom models sync --file ./models.json --merge
  surveyloom models fetch --url https://example.com/models.json
  surveyloom models fetch --provider openrouter --output models.json`,
}

var showProvider string

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		if showProvider != "" {
			p := ai.NormalizeProvider(showProvider)
			for k, v := range cat {
				if v.Provider != p {
					delete(cat, k)
				}
			}
		}
		// pretty-print deterministic order
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		m := make(map[string]ai.ModelInfo, len(keys))
		for _, k := range keys {
			m[k] = cat[k]
		}
		return enc.Encode(m)
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		applyCatalog(m, syncMerge)
		if syncMerge {
			fmt.Fprintln(cmd.OutOrStdout(), "Merged model catalog from file")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "Replaced model catalog from file")
		}
		return nil
	},
}

// providerURL returns a catalog URL configured for a provider through
// SURVEYLOOM_<PROVIDER>_CATALOG_URL. Empty string if none.
func providerURL(name string) string {
	switch ai.NormalizeProvider(name) {
	case ai.ProviderOpenRouter:
		return os.Getenv("SURVEYLOOM_OPENROUTER_CATALOG_URL")
	case ai.ProviderOpenAI:
		return os.Getenv("SURVEYLOOM_OPENAI_CATALOG_URL")
	case ai.ProviderOllama:
		return os.Getenv("SURVEYLOOM_OLLAMA_CATALOG_URL")
	default:
		return ""
	}
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		url := fetchURL
		if url == "" && fetchProvider != "" {
			url = providerURL(fetchProvider)
		}
		var m map[string]ai.ModelInfo
		switch {
		case url != "":
			fetched, err := fetchCatalog(url)
			if err != nil {
				return err
			}
			m = fetched
		case fetchProvider != "":
			// No URL: fall back to the built-in preset without network.
			preset, ok := ai.PresetCatalog(fetchProvider)
			if !ok {
				return fmt.Errorf("no catalog URL or built-in preset for provider %q", fetchProvider)
			}
			m = preset
		default:
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}

		// Optionally write to file
		if fetchOutput != "" {
			data, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fetchOutput, data); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(out, "Saved catalog to %s\n", fetchOutput)
		}
		applyCatalog(m, fetchMerge)
		if fetchMerge {
			fmt.Fprintf(out, "Merged %d model(s) into in-memory catalog\n", len(m))
		} else {
			fmt.Fprintf(out, "Replaced in-memory catalog with %d model(s)\n", len(m))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().StringVar(&showProvider, "provider", "", "only show models served by this provider")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the catalog JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider (openai|openrouter|ollama) whose catalog URL or built-in preset to use if --url is not set")
}
