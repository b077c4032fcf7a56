package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/processor"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/store"
	"github.com/Ramsey-B/fern/pkg/summary"
	"github.com/Ramsey-B/fern/pkg/upsert"
)

// SyncOptions holds flags for the offline sync command.
type SyncOptions struct {
	EventFile string
	SeedFile  string
}

// SyncOutput is printed by the sync command.
type SyncOutput struct {
	Result    *models.SyncResult `json:"result"`
	Documents []models.Document  `json:"documents"`
}

// NewSyncCommand runs one synchronization against an in-memory store seeded
// from a file and prints the result with every resulting document.
func NewSyncCommand(root *RootOptions) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization offline against an in-memory store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger, flush, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer flush()

			data, err := os.ReadFile(opts.EventFile)
			if err != nil {
				return fmt.Errorf("failed to read event file: %w", err)
			}
			event, err := kafka.DecodeEvent(data)
			if err != nil {
				return err
			}
			if event == nil {
				return fmt.Errorf("event file %s holds no change event", opts.EventFile)
			}

			mem := store.NewMemoryStore()
			if opts.SeedFile != "" {
				seed, err := readSeed(opts.SeedFile)
				if err != nil {
					return err
				}
				mem.Seed(seed...)
			}
			if event.Operation != models.OperationDelete && event.CurrentSnapshot.ID() != "" && mem.Get(event.CurrentSnapshot.ID()) == nil {
				mem.Seed(event.CurrentSnapshot)
			}

			policy, err := rules.LoadPolicy(cfg.SyncPolicyFile)
			if err != nil {
				return err
			}
			prefix := policy.InvoicePrefix
			if cfg.SyncInvoicePrefix != "" {
				prefix = cfg.SyncInvoicePrefix
			}

			p := processor.NewProcessor(
				logger,
				mem,
				upsert.NewEngine(mem, logger, cfg.SyncRevisionCheck),
				rules.DefaultRegistry(policy, rules.NewNumberer(mem, nil, prefix, cfg.SyncLockTTL, logger)),
				summary.NewBuilder(),
			)

			result, err := p.Process(cmd.Context(), *event)
			if err != nil {
				return err
			}
			documents, err := mem.FetchMany(cmd.Context(), store.Query{})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(SyncOutput{Result: result, Documents: documents})
		},
	}

	cmd.Flags().StringVar(&opts.EventFile, "event", "", "change event, bare document or Debezium envelope (JSON)")
	cmd.Flags().StringVar(&opts.SeedFile, "seed", "", "JSON array of documents loaded into the store first")
	_ = cmd.MarkFlagRequired("event")

	return cmd
}

func readSeed(path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var docs []models.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	for i, doc := range docs {
		if err := store.Validate(doc); err != nil {
			return nil, fmt.Errorf("seed document %d: %w", i, err)
		}
	}
	return docs, nil
}
