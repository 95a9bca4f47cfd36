package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect or seed the search index",
		Long: `Index reads documents from the configured search index.

put and delete only work with the local bleve backend (index.backend: bleve),
where they stand in for the indexing service that normally maintains it.`,
	}

	cmd.AddCommand(newIndexGetCmd())
	cmd.AddCommand(newIndexPutCmd())
	cmd.AddCommand(newIndexDeleteCmd())
	return cmd
}

type replicaView struct {
	MemberNode string `json:"memberNode"`
	Verified   string `json:"verified"`
}

type documentView struct {
	ID            string        `json:"id"`
	DateModified  string        `json:"dateModified"`
	SerialVersion string        `json:"serialVersion,omitempty"`
	Replicas      []replicaView `json:"replicas"`
}

func viewDocument(doc meta.IndexedDocument) documentView {
	v := documentView{
		ID:           doc.ID,
		DateModified: doc.DateModified.UTC().Format(meta.TimeLayout),
		Replicas:     []replicaView{},
	}
	if doc.SerialVersion != nil {
		v.SerialVersion = doc.SerialVersion.String()
	}
	for _, r := range doc.Replicas {
		v.Replicas = append(v.Replicas, replicaView{
			MemberNode: r.MemberNode,
			Verified:   r.Verified.UTC().Format(meta.TimeLayout),
		})
	}
	return v
}

// documentFromSnapshot is the document an indexer would write for snap.
func documentFromSnapshot(snap meta.Snapshot) meta.IndexedDocument {
	doc := meta.IndexedDocument{
		ID:            snap.Identifier,
		DateModified:  snap.DateModified,
		SerialVersion: snap.SerialVersion,
		Replicas:      []meta.Replica{},
	}
	doc.Replicas = append(doc.Replicas, snap.Replicas...)
	return doc
}

func newIndexGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show the indexed document for an identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			backend, err := openLookup(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			doc, found, err := backend.lookup.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if !found {
				if jsonOutput {
					return out.JSON(nil)
				}
				out.Warningf("%s is not in the %s index", args[0], backend.name)
				return nil
			}

			v := viewDocument(doc)
			if jsonOutput {
				return out.JSON(v)
			}
			out.Statusf("", "ID:       %s", v.ID)
			out.Statusf("", "Modified: %s", v.DateModified)
			out.Statusf("", "Serial:   %s", v.SerialVersion)
			if len(v.Replicas) > 0 {
				rows := make([][]string, 0, len(v.Replicas))
				for _, r := range v.Replicas {
					rows = append(rows, []string{r.MemberNode, r.Verified})
				}
				out.Newline()
				out.Table([]string{"MEMBER NODE", "VERIFIED"}, rows)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIndexPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <snapshot.json|->",
		Short: "Write a snapshot into the local index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			backend, err := openLocalIndex()
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			doc := documentFromSnapshot(snap)
			if doc.DateModified.IsZero() {
				doc.DateModified = time.Now().UTC()
			}
			if err := backend.local.Put(cmd.Context(), doc); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Indexed %s", doc.ID)
			return nil
		},
	}
}

func newIndexDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove a document from the local index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openLocalIndex()
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			if err := backend.local.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %s", args[0])
			return nil
		},
	}
}

func openLocalIndex() (*lookupBackend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Index.Backend != config.BackendBleve {
		return nil, ierrors.ValidationError("the configured index is read-only", nil).
			WithDetail("backend", cfg.Index.Backend).
			WithSuggestion("Set index.backend to bleve to manage a local index")
	}
	return openLookup(cfg)
}
