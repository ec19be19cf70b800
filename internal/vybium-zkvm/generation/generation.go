// Package generation turns an executed batch into the full, ordered set
// of trace tables. Table generators run concurrently; the tables that
// need a compression challenge are finalized once every generator has
// reported, and the cross-table lookups are checked last.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/field"
	"github.com/vybium/vybium-crypto/pkg/vybium-crypto/hash"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/core"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/ctl"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/tables"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/utils"
	"github.com/vybium/vybium-zkvm/internal/vybium-zkvm/vm"
)

// ErrInvariant wraps a panic raised inside a table generator
var ErrInvariant = errors.New("trace generation invariant violated")

// BlockMetadata describes the block the batch belongs to
type BlockMetadata struct {
	BlockNumber    uint64       `json:"block_number"`
	BlockTimestamp uint64       `json:"block_timestamp"`
	ChainID        uint64       `json:"chain_id"`
	Coinbase       core.Address `json:"-"`
}

// TrieRoots are the storage tree roots at one point of the batch
type TrieRoots struct {
	StateRoot core.Word
}

// PublicValues accompany the tables without being part of them
type PublicValues struct {
	TrieRootsBefore TrieRoots
	TrieRootsAfter  TrieRoots
	BlockMetadata   BlockMetadata
}

// Traces is the output of trace generation
type Traces struct {
	Tables       [tables.NumTables]*tables.Table
	PublicValues PublicValues
	Digests      [tables.NumTables]field.Element
	Challenges   []ctl.Challenge
	BitwiseBeta  field.Element
	ProgramBeta  field.Element

	// Lookups holds the running sums when lookups were checked
	Lookups []ctl.LookupZData
}

// Betas returns the compression challenges the lookups are declared with
func (t *Traces) Betas() ctl.Betas {
	return ctl.Betas{Bitwise: t.BitwiseBeta, Program: t.ProgramBeta}
}

// PolynomialValues returns every table's columns in output order
func (t *Traces) PolynomialValues() [tables.NumTables][]tables.PolynomialValues {
	var out [tables.NumTables][]tables.PolynomialValues
	for id, tbl := range t.Tables {
		out[id] = tbl.PolynomialValues()
	}
	return out
}

// result is what one generator reports. Two-phase tables report the
// phased form and are finalized after the gather.
type result struct {
	table  *tables.Table
	phased *tables.PhasedTable
}

func (r result) raw() *tables.Table {
	if r.phased != nil {
		return r.phased.Raw()
	}
	return r.table
}

func plain(t *tables.Table) result { return result{table: t} }

// generators maps every table to its generator
var generators = [tables.NumTables]func(*vm.Batch) result{
	tables.Cpu:           func(b *vm.Batch) result { return plain(tables.GenerateCpu(b.Txs)) },
	tables.Memory:        func(b *vm.Batch) result { return plain(tables.GenerateMemory(b.Txs)) },
	tables.Bitwise:       func(b *vm.Batch) result { return result{phased: tables.GenerateBitwise(b.Txs)} },
	tables.Cmp:           func(b *vm.Batch) result { return plain(tables.GenerateCmp(b.Txs)) },
	tables.RangeCheck:    func(b *vm.Batch) result { return plain(tables.GenerateRangeCheck(b.Txs)) },
	tables.Poseidon:      func(b *vm.Batch) result { return plain(tables.GeneratePoseidon(b.Txs, b.ProgramChunks)) },
	tables.PoseidonChunk: func(b *vm.Batch) result { return plain(tables.GeneratePoseidonChunk(b.Txs)) },
	tables.StorageHash:   func(b *vm.Batch) result { return plain(tables.GenerateStorageHash(b.Txs)) },
	tables.Tape:          func(b *vm.Batch) result { return plain(tables.GenerateTape(b.Txs)) },
	tables.ScCall:        func(b *vm.Batch) result { return plain(tables.GenerateScCall(b.Txs)) },
	tables.Program: func(b *vm.Batch) result {
		return result{phased: tables.GenerateProgram(b.Programs, b.Txs)}
	},
	tables.ProgramChunk: func(b *vm.Batch) result { return plain(tables.GenerateProgramChunk(b.ProgramChunks)) },
}

// Generator runs trace generation
type Generator struct {
	cfg    *utils.Config
	log    *logrus.Entry
	tracer trace.Tracer
}

// NewGenerator creates a generator. A nil config uses the defaults.
func NewGenerator(cfg *utils.Config) *Generator {
	if cfg == nil {
		cfg = utils.DefaultConfig()
	}
	return &Generator{
		cfg:    cfg,
		log:    logrus.WithField("component", "generation"),
		tracer: otel.Tracer("github.com/vybium/vybium-zkvm/generation"),
	}
}

// WithLogger replaces the generator's log entry
func (g *Generator) WithLogger(log *logrus.Entry) *Generator {
	g.log = log
	return g
}

// WithTracer replaces the generator's tracer
func (g *Generator) WithTracer(tracer trace.Tracer) *Generator {
	g.tracer = tracer
	return g
}

// GenerateTraces generates the tables of batch with a default generator
func GenerateTraces(ctx context.Context, batch *vm.Batch, metadata BlockMetadata, cfg *utils.Config) (*Traces, error) {
	return NewGenerator(cfg).GenerateTraces(ctx, batch, metadata)
}

// GenerateTraces runs every table generator, finalizes the two-phase
// tables, derives the lookup challenges and, when configured, checks
// every cross-table lookup
func (g *Generator) GenerateTraces(ctx context.Context, batch *vm.Batch, metadata BlockMetadata) (*Traces, error) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "GenerateTraces",
		trace.WithAttributes(attribute.Int("txs", len(batch.Txs))))
	defer span.End()

	out, err := g.generate(ctx, batch, metadata)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rows := 0
	for _, t := range out.Tables {
		rows += t.Height()
	}
	g.log.WithFields(logrus.Fields{
		"txs":     len(batch.Txs),
		"rows":    rows,
		"checked": out.Lookups != nil,
		"took":    time.Since(start),
	}).Info("traces generated")
	return out, nil
}

func (g *Generator) generate(ctx context.Context, batch *vm.Batch, metadata BlockMetadata) (*Traces, error) {
	results, err := g.runGenerators(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("generate tables: %w", err)
	}

	out := &Traces{
		PublicValues: PublicValues{
			TrieRootsBefore: TrieRoots{StateRoot: batch.RootBefore},
			TrieRootsAfter:  TrieRoots{StateRoot: batch.RootAfter},
			BlockMetadata:   metadata,
		},
	}

	// gather: two-phase tables take their own challenge
	for id, r := range results {
		if r.phased == nil {
			out.Tables[id] = r.table
			continue
		}
		beta := r.phased.Beta()
		r.phased.SetCompressChallenge(beta)
		t, err := r.phased.Finalize()
		if err != nil {
			return nil, fmt.Errorf("finalize: %w", err)
		}
		out.Tables[id] = t
		switch tables.TableID(id) {
		case tables.Bitwise:
			out.BitwiseBeta = beta
		case tables.Program:
			out.ProgramBeta = beta
		}
	}

	if err := g.digest(ctx, out); err != nil {
		return nil, fmt.Errorf("digest tables: %w", err)
	}
	out.Challenges = ctl.DeriveChallenges(hash.PoseidonHash(out.Digests[:]), ctl.NumChallenges)

	if g.cfg.CheckLookups {
		lookups := ctl.AllCrossTableLookups(out.Betas())
		data, err := ctl.ComputeRunningSums(&out.Tables, lookups, out.Challenges)
		if err != nil {
			return nil, fmt.Errorf("lookup running sums: %w", err)
		}
		if err := ctl.Verify(data); err != nil {
			return nil, err
		}
		out.Lookups = data
	}
	return out, nil
}

// fanOut runs fn once per table under the configured concurrency limit
func (g *Generator) fanOut(ctx context.Context, name string, fn func(ctx context.Context, id tables.TableID) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	if g.cfg.Concurrency > 0 {
		eg.SetLimit(g.cfg.Concurrency)
	}
	for _, id := range tables.AllTables() {
		id := id
		eg.Go(func() (err error) {
			if err := ctx.Err(); err != nil {
				return err
			}
			ctx, span := g.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("table", id.String())))
			defer span.End()
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %s table: %v", ErrInvariant, id, r)
				}
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
			}()
			return fn(ctx, id)
		})
	}
	return eg.Wait()
}

func (g *Generator) runGenerators(ctx context.Context, batch *vm.Batch) ([tables.NumTables]result, error) {
	var results [tables.NumTables]result
	err := g.fanOut(ctx, "generate table", func(ctx context.Context, id tables.TableID) error {
		start := time.Now()
		r := generators[id](batch)
		results[id] = r

		raw := r.raw()
		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("height", raw.Height()),
			attribute.Int("width", raw.Width()),
		)
		g.log.WithFields(logrus.Fields{
			"table":  id.String(),
			"height": raw.Height(),
			"width":  raw.Width(),
			"took":   time.Since(start),
		}).Debug("table generated")
		return nil
	})
	return results, err
}

func (g *Generator) digest(ctx context.Context, out *Traces) error {
	return g.fanOut(ctx, "digest table", func(_ context.Context, id tables.TableID) error {
		out.Digests[id] = out.Tables[id].Digest()
		return nil
	})
}
