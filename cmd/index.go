package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/index"
)

func newIndexCmd() *cobra.Command {
	var rebuild, check bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Load or build the document index",
		Long: "Loads the persisted document index, building it from retrieval.data_dir when none exists.\n" +
			"--rebuild re-embeds every document; --check reports whether the index matches the documents.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rebuild && check {
				return errors.New("--rebuild and --check are mutually exclusive")
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			opts := indexOptions(a)
			out := cmd.OutOrStdout()

			if check {
				ix, err := index.Load(opts.StorageDir)
				if errors.Is(err, fs.ErrNotExist) {
					fmt.Fprintf(out, "No index at %s. Run `tuxqa index` to build it.\n", index.Path(opts.StorageDir))
					return nil
				}
				if err != nil {
					return err
				}
				stale, err := ix.Stale(opts.DataDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Index: %d documents, %d chunks, model %s, built %s\n",
					ix.Documents, len(ix.Chunks), ix.EmbedModel, ix.CreatedAt.Local().Format("2006-01-02 15:04"))
				if stale {
					fmt.Fprintln(out, "Documents changed since the index was built. Run `tuxqa index --rebuild`.")
				} else {
					fmt.Fprintln(out, "Index is up to date.")
				}
				return nil
			}

			emb, err := buildEmbedder(a.cfg)
			if err != nil {
				return err
			}
			var res index.Outcome
			if rebuild {
				res = index.Rebuild(cmd.Context(), opts, emb)
			} else {
				res = index.LoadOrInitialize(cmd.Context(), opts, emb)
			}
			if res.Status == index.StatusFailed {
				return fmt.Errorf("index: %w", res.Err)
			}
			fmt.Fprintf(out, "Index %s: %d documents, %d chunks (%s)\n",
				res.Status, res.Index.Documents, len(res.Index.Chunks), index.Path(opts.StorageDir))
			if res.PersistErr != nil {
				fmt.Fprintf(out, "warning: index not saved: %v\n", res.PersistErr)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "re-embed all documents and overwrite the stored index")
	cmd.Flags().BoolVar(&check, "check", false, "report whether the stored index matches the documents")
	return cmd
}
