package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/model"
)

type inspectReport struct {
	Path          string               `json:"path"`
	FileSize      int64                `json:"file_size"`
	Version       uint32               `json:"version"`
	Alignment     uint64               `json:"alignment"`
	TensorCount   uint64               `json:"tensor_count"`
	KVCount       uint64               `json:"kv_count"`
	Hyper         gguf.Hyperparameters `json:"hyperparameters"`
	VocabSize     int                  `json:"vocab_size"`
	VocabFallback bool                 `json:"vocab_fallback"`
	ArenaBytes    int64                `json:"arena_bytes"`
	Footprint     int64                `json:"footprint_bytes"`
	Tensors       []tensorRow          `json:"tensors,omitempty"`
	KV            []kvRow              `json:"kv,omitempty"`
	Vocab         []string             `json:"vocab,omitempty"`
}

type tensorRow struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Dims      []uint64 `json:"dims"`
	Bytes     uint64   `json:"bytes"`
	Supported bool     `json:"supported"`
	Selected  bool     `json:"selected"`
}

type kvRow struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type inspectOptions struct {
	tensors     bool
	kv          bool
	tensorLimit int
	vocabLimit  int
	filter      string
}

func inspectCmd() *cli.Command {
	var (
		path     string
		asJSON   bool
		showAll  bool
		opts     inspectOptions
		maxBytes int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a GGUF container and the load plan pocket would use",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "path to .gguf file",
				Destination: &path,
				Required:    true,
			},
			&cli.BoolFlag{Name: "json", Usage: "print the report as JSON", Destination: &asJSON},
			&cli.BoolFlag{Name: "all", Usage: "include tensors, metadata and vocabulary", Destination: &showAll},
			&cli.BoolFlag{Name: "tensors", Usage: "list the tensor directory", Destination: &opts.tensors},
			&cli.BoolFlag{Name: "kv", Usage: "list metadata keys", Destination: &opts.kv},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &opts.tensorLimit},
			&cli.IntFlag{Name: "vocab-limit", Usage: "number of vocabulary entries to list", Destination: &opts.vocabLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &opts.filter},
			&cli.Int64Flag{Name: "max-model-bytes", Usage: "reject files larger than this (0 = default)", Destination: &maxBytes},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if showAll {
				opts.tensors, opts.kv = true, true
				if opts.vocabLimit == 0 {
					opts.vocabLimit = 50
				}
			}
			rep, err := buildReport(path, model.Options{MaxFileBytes: maxBytes}, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if asJSON {
				b, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, string(b))
				return err
			}
			printReport(os.Stdout, rep)
			return nil
		},
	}
}

func buildReport(path string, mopts model.Options, opts inspectOptions) (inspectReport, error) {
	f, err := gguf.Open(path)
	if err != nil {
		return inspectReport{}, err
	}
	defer func() { _ = f.Close() }()

	plan, err := model.Inspect(path, mopts)
	if err != nil {
		return inspectReport{}, err
	}
	defer func() { _ = plan.Close() }()

	rep := inspectReport{
		Path:          path,
		FileSize:      f.Size,
		Version:       f.Header.Version,
		Alignment:     f.Alignment,
		TensorCount:   f.Header.TensorCount,
		KVCount:       f.Header.KVCount,
		Hyper:         plan.Hyper,
		VocabSize:     plan.Hyper.VocabSize,
		VocabFallback: plan.VocabFallback(),
		ArenaBytes:    plan.ArenaBytes,
		Footprint:     plan.Footprint(),
	}

	if opts.tensors {
		selected := make(map[string]bool, len(plan.Selected))
		for _, t := range plan.Selected {
			selected[t.Name] = true
		}
		for _, t := range f.Tensors {
			if opts.filter != "" && !strings.Contains(t.Name, opts.filter) {
				continue
			}
			if opts.tensorLimit > 0 && len(rep.Tensors) == opts.tensorLimit {
				break
			}
			rep.Tensors = append(rep.Tensors, tensorRow{
				Name:      t.Name,
				Type:      t.TypeName(),
				Dims:      t.Dims,
				Bytes:     t.Size,
				Supported: t.Supported,
				Selected:  selected[t.Name],
			})
		}
	}

	if opts.kv {
		keys := make([]string, 0, len(f.KV))
		for k := range f.KV {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := f.KV[k]
			rep.KV = append(rep.KV, kvRow{Key: k, Type: v.Type.String(), Value: renderValue(v.Value)})
		}
	}

	rep.Vocab = plan.VocabPreview(opts.vocabLimit)
	return rep, nil
}

// renderValue prints scalars as-is and summarizes arrays.
func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		if len(t) > 64 {
			return fmt.Sprintf("%q...", t[:64])
		}
		return fmt.Sprintf("%q", t)
	case gguf.ArrayValue:
		head := make([]string, 0, 4)
		for _, item := range t.Values[:min(len(t.Values), 4)] {
			head = append(head, renderValue(item))
		}
		more := ""
		if len(t.Values) > len(head) {
			more = ", ..."
		}
		return fmt.Sprintf("[%s] x%d [%s%s]", t.ElemType, len(t.Values), strings.Join(head, ", "), more)
	default:
		return fmt.Sprint(t)
	}
}

func printReport(w io.Writer, rep inspectReport) {
	_, _ = fmt.Fprintf(w, "file:         %s (%s)\n", rep.Path, formatBytes(rep.FileSize))
	_, _ = fmt.Fprintf(w, "gguf:         v%d, %d tensors, %d keys, alignment %d\n", rep.Version, rep.TensorCount, rep.KVCount, rep.Alignment)
	h := rep.Hyper
	_, _ = fmt.Fprintf(w, "arch:         %s vocab=%d dim=%d heads=%d layers=%d ctx=%d\n",
		h.Architecture, h.VocabSize, h.EmbeddingDim, h.HeadCount, h.LayerCount, h.ContextLength)
	vocab := fmt.Sprintf("%d tokens", rep.VocabSize)
	if rep.VocabFallback {
		vocab += " (built-in fallback)"
	}
	_, _ = fmt.Fprintf(w, "vocabulary:   %s\n", vocab)
	_, _ = fmt.Fprintf(w, "load plan:    arena %s, footprint %s\n", formatBytes(rep.ArenaBytes), formatBytes(rep.Footprint))

	if len(rep.Tensors) > 0 {
		_, _ = fmt.Fprintln(w, "\ntensors:")
		for _, t := range rep.Tensors {
			mark := " "
			if t.Selected {
				mark = "*"
			}
			_, _ = fmt.Fprintf(w, "  %s %-32s %-6s %-16v %s\n", mark, t.Name, t.Type, t.Dims, formatBytes(int64(t.Bytes)))
		}
	}
	if len(rep.KV) > 0 {
		_, _ = fmt.Fprintln(w, "\nmetadata:")
		for _, kv := range rep.KV {
			_, _ = fmt.Fprintf(w, "  %-40s %-8s %s\n", kv.Key, kv.Type, kv.Value)
		}
	}
	if len(rep.Vocab) > 0 {
		_, _ = fmt.Fprintln(w, "\nvocabulary:")
		for id, s := range rep.Vocab {
			_, _ = fmt.Fprintf(w, "  %5d %q\n", id, s)
		}
	}
}
