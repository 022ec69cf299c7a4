package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"paperqa/internal/chunker"
	"paperqa/internal/corpus"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed the abstracts of every text shard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		emb, err := newEmbedder(ctx, cfg)
		if err != nil {
			return err
		}
		if c, ok := emb.(io.Closer); ok {
			defer c.Close()
		}

		files, err := corpus.EmbedCorpus(ctx, cfg.Corpus.TextDir, cfg.Corpus.EmbeddingsDir, emb, corpus.EmbedOptions{
			BatchSize: cfg.Corpus.BatchSize,
			Workers:   cfg.Corpus.Workers,
			Chunker:   chunker.NewWordChunker(cfg.Embedder.WordsPerChunk, 0),
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("embed corpus: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d embedding shards to %s\n", len(files), cfg.Corpus.EmbeddingsDir)
		return nil
	},
}
