package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hma/internal/core/exchange/sample"
	"hma/internal/core/signal"
	perr "hma/internal/platform/errors"
	banksdom "hma/internal/services/banks/domain"
	xdom "hma/internal/services/exchanges/domain"
)

// SampleExchange is the exchange `seed sample` creates
const SampleExchange = "SAMPLE"

// Manifest is a seed file: banks with inline content, and exchanges
type Manifest struct {
	Banks     []BankSeed     `yaml:"banks"`
	Exchanges []ExchangeSeed `yaml:"exchanges"`
}

// BankSeed is one bank of a manifest
type BankSeed struct {
	Name         string        `yaml:"name"`
	EnabledRatio *float64      `yaml:"enabled_ratio"`
	Content      []ContentSeed `yaml:"content"`
}

// ContentSeed is one member of a seeded bank
type ContentSeed struct {
	ContentType string            `yaml:"content_type"`
	Signals     map[string]string `yaml:"signals"`
	Tags        []string          `yaml:"tags"`
	Notes       string            `yaml:"notes"`
}

// ExchangeSeed is one exchange of a manifest. TypedConfig is any YAML object
type ExchangeSeed struct {
	Name        string         `yaml:"name"`
	API         string         `yaml:"api"`
	Enabled     *bool          `yaml:"enabled"`
	TypedConfig map[string]any `yaml:"typed_config"`
}

// parseManifest reads a YAML seed manifest
func parseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return Manifest{}, fmt.Errorf("seed manifest: %w", err)
	}
	for i, b := range m.Banks {
		if b.Name == "" {
			return Manifest{}, fmt.Errorf("seed manifest: bank %d has no name", i)
		}
	}
	for i, x := range m.Exchanges {
		if x.Name == "" || x.API == "" {
			return Manifest{}, fmt.Errorf("seed manifest: exchange %d needs name and api", i)
		}
	}
	return m, nil
}

func seedCmd(c *cli) *cobra.Command {
	var (
		file  string
		banks int
		seeds int
	)
	cmd := &cobra.Command{
		Use:   "seed [sample|random]",
		Short: "Add development data",
		Long: `seed sample creates the SAMPLE exchange and fetches it once.
seed random fills --banks banks with --seeds random pdq members in total.
seed --file applies a YAML manifest of banks and exchanges.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"sample", "random"},
		RunE: c.runE(func(cmd *cobra.Command, args []string, p *ports) error {
			ctx, out := cmd.Context(), cmd.OutOrStdout()
			mode := "sample"
			if len(args) == 1 {
				mode = args[0]
			}
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return usageErr("%v", err)
				}
				defer f.Close()
				m, err := parseManifest(f)
				if err != nil {
					return usageErr("%v", err)
				}
				return applyManifest(ctx, out, p, m)
			}
			if mode == "random" {
				if banks <= 0 || seeds < 0 {
					return usageErr("--banks must be positive and --seeds not negative")
				}
				return seedRandom(ctx, out, p, banks, seeds, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
			}
			return seedSample(ctx, out, p)
		}),
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML manifest of banks and exchanges")
	cmd.Flags().IntVarP(&banks, "banks", "b", 10, "banks to create in random mode")
	cmd.Flags().IntVarP(&seeds, "seeds", "s", 1000, "members to create across the banks in random mode")
	return cmd
}

func seedSample(ctx context.Context, out io.Writer, p *ports) error {
	enabled := true
	_, err := p.exchanges.Create(ctx, xdom.CreateInput{Name: SampleExchange, API: sample.Name, Enabled: &enabled})
	if err != nil && !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		return err
	}
	r, err := p.runner.FetchOne(ctx, SampleExchange)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %s: %d upserts\n", SampleExchange, r.Upserts)
	if r.Outcome == xdom.OutcomeFailed {
		return partialErr("sample fetch failed: %s", r.Reason)
	}
	return nil
}

// ensureBank creates name, or leaves an existing bank alone
func ensureBank(ctx context.Context, p *ports, name string, ratio *float64) error {
	_, err := p.banks.CreateBank(ctx, banksdom.CreateBankInput{Name: name, MatchingEnabledRatio: ratio})
	if err != nil && !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
		return err
	}
	return nil
}

func seedRandom(ctx context.Context, out io.Writer, p *ports, banks, seeds int, rng *rand.Rand) error {
	names := make([]string, banks)
	for i := range names {
		names[i] = fmt.Sprintf("SEED_BANK_%d", i)
		if err := ensureBank(ctx, p, names[i], nil); err != nil {
			return err
		}
	}
	hash := make([]byte, 32)
	for i := 0; i < seeds; i++ {
		for j := range hash {
			hash[j] = byte(rng.UintN(256))
		}
		_, err := p.banks.AddContent(ctx, names[i%banks], banksdom.AddContentInput{
			ContentType: signal.ContentPhoto,
			Signals:     map[string]string{"pdq": hex.EncodeToString(hash)},
			Tags:        []string{"seed"},
		})
		if err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "seeded %d banks with %d pdq members\n", banks, seeds)
	return nil
}

func applyManifest(ctx context.Context, out io.Writer, p *ports, m Manifest) error {
	for _, x := range m.Exchanges {
		in := xdom.CreateInput{Name: x.Name, API: x.API, Enabled: x.Enabled}
		if x.TypedConfig != nil {
			raw, err := json.Marshal(x.TypedConfig)
			if err != nil {
				return usageErr("exchange %s typed_config: %v", x.Name, err)
			}
			in.TypedConfig = raw
		}
		if _, err := p.exchanges.Create(ctx, in); err != nil && !perr.IsCode(err, perr.ErrorCodeDuplicateKey) {
			return err
		}
	}
	members := 0
	for _, b := range m.Banks {
		if err := ensureBank(ctx, p, b.Name, b.EnabledRatio); err != nil {
			return err
		}
		for _, ct := range b.Content {
			_, err := p.banks.AddContent(ctx, b.Name, banksdom.AddContentInput{
				ContentType: ct.ContentType,
				Signals:     ct.Signals,
				Tags:        ct.Tags,
				Notes:       ct.Notes,
			})
			if err != nil {
				return err
			}
			members++
		}
	}
	fmt.Fprintf(out, "seeded %d exchanges, %d banks, %d members\n", len(m.Exchanges), len(m.Banks), members)
	return nil
}
