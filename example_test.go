package walset_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/hupe1980/walset"
	"github.com/hupe1980/walset/blobstore"
	"github.com/hupe1980/walset/manifest"
)

// Example_lifecycle walks one WAL from creation to retirement.
func Example_lifecycle() {
	set := walset.New()

	// Created, then synced twice while open.
	_ = set.AddWal(walset.Addition{Number: 7})
	_ = set.AddWal(walset.Addition{Number: 7, Metadata: walset.NewMetadata(100)})
	_ = set.AddWal(walset.Addition{Number: 7, Metadata: walset.NewMetadata(300)})

	// An open WAL cannot be retired.
	err := set.DeleteWal(walset.Deletion{Number: 7})
	fmt.Println("delete open WAL rejected:", errors.Is(err, walset.ErrCorruption))

	var closed walset.Metadata
	closed.SetClosed()
	_ = set.AddWal(walset.Addition{Number: 7, Metadata: closed})
	_ = set.AddWal(walset.Addition{Number: 9})
	fmt.Print(set)

	_ = set.DeleteWal(walset.Deletion{Number: 7})
	fmt.Println("tracked:", set.Len())
	// Output:
	// delete open WAL rejected: true
	// log_number: 7 synced_size_in_bytes: 300 closed: 1
	// log_number: 9 synced_size_in_bytes: unknown closed: 0
	// tracked: 1
}

// ExampleAddition_EncodeTo shows the wire form of an addition and a deletion.
func ExampleAddition_EncodeTo() {
	md := walset.NewMetadata(300)
	md.SetClosed()

	fmt.Printf("%x\n", walset.Addition{Number: 7, Metadata: md}.EncodeTo(nil))
	fmt.Printf("%x\n", walset.Deletion{Number: 5}.EncodeTo(nil))

	var decoded walset.Addition
	if _, err := decoded.DecodeFrom([]byte{0x07, 0x02, 0xac, 0x02, 0x03, 0x01}); err != nil {
		log.Fatal(err)
	}
	fmt.Println(decoded)
	// Output:
	// 0702ac020301
	// 05
	// log_number: 7 synced_size_in_bytes: 300 closed: 1
}

// Example_recover logs edits to a manifest, checkpoints the set and
// rebuilds it from the checkpoint plus the log tail.
func Example_recover() {
	ctx := context.Background()
	dir, err := os.MkdirTemp("", "walset-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	logPath := filepath.Join(dir, "MANIFEST")
	cps := manifest.NewCheckpointStore(blobstore.NewLocalStore(filepath.Join(dir, "checkpoints")))

	w, err := manifest.OpenWriter(nil, logPath, manifest.WithDurability(manifest.DurabilitySync))
	if err != nil {
		log.Fatal(err)
	}

	live := walset.New()
	apply := func(e *manifest.Edit) int64 {
		off, err := w.AddEdit(e)
		if err != nil {
			log.Fatal(err)
		}
		if err := e.Apply(live); err != nil {
			log.Fatal(err)
		}
		return off
	}

	e := new(manifest.Edit)
	e.AddWal(1, walset.NewMetadata(4096))
	e.AddWal(2, walset.Metadata{})
	off := apply(e)

	if _, err := cps.Save(ctx, live, off); err != nil {
		log.Fatal(err)
	}

	var closed walset.Metadata
	closed.SetClosed()
	e = new(manifest.Edit)
	e.AddWal(1, closed)
	apply(e)

	e = new(manifest.Edit)
	e.DeleteWal(1)
	apply(e)

	if err := w.Close(); err != nil {
		log.Fatal(err)
	}

	recovered := walset.New()
	stats, err := manifest.Recover(ctx, recovered, manifest.RecoverOptions{
		LogPath:     logPath,
		Checkpoints: cps,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("checkpoint:", stats.CheckpointID)
	fmt.Println("edits replayed:", stats.EditsReplayed)
	fmt.Print(recovered)
	// Output:
	// checkpoint: 1
	// edits replayed: 2
	// log_number: 2 synced_size_in_bytes: unknown closed: 0
}
