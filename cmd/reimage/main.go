// Command reimage brings product images uploaded before processing existed
// to the standard 800x800 JPEG, rewriting each file in place so product
// rows keep pointing at the same path.
package main

import (
	"bytes"
	"context"
	"flag"
	"log"

	"github.com/caramelapple/storefront/internal/config"
	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/images"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Report what would change without writing")
	limit := flag.Int("limit", 1, "Process at most this many products")
	all := flag.Bool("all", false, "Process every product (overrides -limit)")
	force := flag.Bool("force", false, "Reprocess images that are already 800x800")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	store, err := images.NewStore(cfg.ImageDir, cfg.ImageBaseURL)
	if err != nil {
		log.Fatalf("Unable to open image dir: %v", err)
	}

	products, err := database.New(pool).ListProductsWithImages(ctx)
	if err != nil {
		log.Fatalf("Failed to list products: %v", err)
	}
	if !*all && *limit > 0 && len(products) > *limit {
		products = products[:*limit]
		log.Printf("Processing first %d products (use -all for every product)", *limit)
	}

	var done, skipped, failed int
	for _, p := range products {
		path := p.ImagePath.String
		if !store.Owns(path) {
			log.Printf("skip %s: %q is not a local image", p.Name, path)
			skipped++
			continue
		}

		data, err := store.Read(path)
		if err != nil {
			log.Printf("ERROR: %s: read %s: %v", p.Name, path, err)
			failed++
			continue
		}
		if images.IsNormalised(data) && !*force {
			log.Printf("skip %s: already %dx%d", p.Name, images.Size, images.Size)
			skipped++
			continue
		}

		out, err := images.Process(bytes.NewReader(data))
		if err != nil {
			log.Printf("ERROR: %s: process %s: %v", p.Name, path, err)
			failed++
			continue
		}

		if *dryRun {
			log.Printf("would rewrite %s (%d -> %d bytes)", path, len(data), len(out))
			done++
			continue
		}
		if err := store.Replace(path, out); err != nil {
			log.Printf("ERROR: %s: write %s: %v", p.Name, path, err)
			failed++
			continue
		}
		log.Printf("rewrote %s (%d -> %d bytes)", path, len(data), len(out))
		done++
	}

	log.Printf("Done: %d processed, %d skipped, %d failed", done, skipped, failed)
}
