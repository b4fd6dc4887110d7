package data_test

import (
	"errors"
	"testing"

	"github.com/mwantia/chunkfs/data"
)

func TestErrors_Empty(t *testing.T) {
	var errs data.Errors

	errs.Add(nil)

	if err := errs.Errors(); err != nil {
		t.Fatalf("Expected nil for an empty collector, got %v", err)
	}
}

func TestErrors_JoinPreservesSentinels(t *testing.T) {
	var errs data.Errors

	errs.Add(data.ErrNotExist)
	errs.Add(nil)
	errs.Add(data.UploadFailed(data.ErrInvalid, data.VirtualChunkID{Inode: "ino", Index: 2}, false, 1))

	err := errs.Errors()
	if err == nil {
		t.Fatal("Expected a joined error")
	}

	if !errors.Is(err, data.ErrNotExist) {
		t.Error("Expected joined error to match ErrNotExist")
	}

	terr, ok := data.IsTransferError(err)
	if !ok {
		t.Fatal("Expected joined error to carry a TransferError")
	}
	if terr.Chunk.Index != 2 {
		t.Errorf("Expected chunk index 2, got %d", terr.Chunk.Index)
	}
}
