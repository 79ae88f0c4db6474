// manager_test.go - Tests for dataset storage
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/manager-data-agent/backend/internal/dataset"
)

func createTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_Save(t *testing.T) {
	t.Run("saves file with its extension", func(t *testing.T) {
		store := createTestStore(t)

		content := "ticker,close\nAAPL,185.64\n"
		info, err := store.Save("Stocks.CSV", strings.NewReader(content))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}

		if info.ID == "" {
			t.Error("Expected ID to be set")
		}
		if info.Name != "Stocks.CSV" {
			t.Errorf("Expected name 'Stocks.CSV', got %v", info.Name)
		}
		if info.Size != int64(len(content)) {
			t.Errorf("Expected size %d, got %d", len(content), info.Size)
		}
		if info.Status != "uploaded" {
			t.Errorf("Expected status 'uploaded', got %v", info.Status)
		}

		data, err := os.ReadFile(filepath.Join(store.uploadDir, info.ID+".csv"))
		if err != nil {
			t.Fatalf("Failed to read saved file: %v", err)
		}
		if string(data) != content {
			t.Errorf("Expected content %q, got %q", content, string(data))
		}
	})

	t.Run("saves bytes", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.SaveBytes("data.parquet", []byte("PAR1"))
		if err != nil {
			t.Fatalf("Failed to save bytes: %v", err)
		}
		if info.Size != 4 {
			t.Errorf("Expected size 4, got %d", info.Size)
		}
	})
}

func TestLocalStore_Get(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("test.csv", strings.NewReader("a\n1\n"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	retrieved, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if retrieved.ID != info.ID {
		t.Errorf("Expected ID %s, got %s", info.ID, retrieved.ID)
	}

	if _, err := store.Get("non-existent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)

	ids := make([]string, 5)
	for i := range ids {
		info, err := store.Save("file.csv", strings.NewReader("a\n1\n"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		ids[i] = info.ID
		time.Sleep(10 * time.Millisecond) // Ensure different timestamps
	}

	t.Run("limits results", func(t *testing.T) {
		files, err := store.List(3)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if len(files) != 3 {
			t.Errorf("Expected 3 files, got %d", len(files))
		}
		if files[0].ID != ids[4] {
			t.Error("Expected files to be sorted by time descending")
		}
	})

	t.Run("zero limit lists everything", func(t *testing.T) {
		files, err := store.List(0)
		if err != nil {
			t.Fatalf("Failed to list files: %v", err)
		}
		if len(files) != 5 {
			t.Errorf("Expected 5 files, got %d", len(files))
		}
	})
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("test.csv", strings.NewReader("a\n1\n"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}
	path, _ := store.GetFilePath(info.ID)

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}
	if _, err := store.Get(info.ID); err == nil {
		t.Error("Expected error when getting deleted file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Physical file should be deleted")
	}

	if err := store.Delete("non-existent-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_Rename(t *testing.T) {
	t.Run("keeps the stored file when extension changes", func(t *testing.T) {
		store := createTestStore(t)

		info, err := store.Save("stocks.csv", strings.NewReader("ticker,close\nAAPL,185.64\n"))
		if err != nil {
			t.Fatalf("Failed to save file: %v", err)
		}
		before, _ := store.GetFilePath(info.ID)

		updated, err := store.Rename(info.ID, "portfolio.parquet")
		if err != nil {
			t.Fatalf("Failed to rename file: %v", err)
		}
		if updated.Name != "portfolio.parquet" {
			t.Errorf("Expected name 'portfolio.parquet', got %v", updated.Name)
		}

		after, err := store.GetFilePath(info.ID)
		if err != nil {
			t.Fatalf("Failed to get file path: %v", err)
		}
		if after != before {
			t.Errorf("Expected stored path %s to be unchanged, got %s", before, after)
		}

		loader, err := dataset.NewLoader(dataset.Options{Threads: 1})
		if err != nil {
			t.Fatalf("Failed to create loader: %v", err)
		}
		defer loader.Close()

		preview, err := loader.Preview(context.Background(), after, 5)
		if err != nil {
			t.Fatalf("Dataset should still be readable after rename: %v", err)
		}
		if !strings.Contains(preview, "AAPL") {
			t.Errorf("Unexpected preview: %q", preview)
		}
	})

	t.Run("delete after rename removes the stored file", func(t *testing.T) {
		store := createTestStore(t)

		info, _ := store.Save("a.csv", strings.NewReader("a\n1\n"))
		path, _ := store.GetFilePath(info.ID)
		if _, err := store.Rename(info.ID, "b.json"); err != nil {
			t.Fatalf("Failed to rename file: %v", err)
		}
		if err := store.Delete(info.ID); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("Physical file should be deleted")
		}
	})

	t.Run("returns error for non-existent file", func(t *testing.T) {
		store := createTestStore(t)

		if _, err := store.Rename("non-existent-id", "x.csv"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})
}

func TestLocalStore_ReturnsCopies(t *testing.T) {
	store := createTestStore(t)

	info, err := store.Save("stocks.csv", strings.NewReader("a\n1\n"))
	if err != nil {
		t.Fatalf("Failed to save file: %v", err)
	}

	info.Name = "mutated.csv"
	got, _ := store.Get(info.ID)
	got.Name = "mutated-again.csv"
	listed, _ := store.List(0)
	listed[0].Name = "mutated-in-list.csv"

	fresh, err := store.Get(info.ID)
	if err != nil {
		t.Fatalf("Failed to get file: %v", err)
	}
	if fresh.Name != "stocks.csv" {
		t.Errorf("Expected stored name to be untouched, got %s", fresh.Name)
	}

	renamed, _ := store.Rename(info.ID, "new.csv")
	if renamed == fresh {
		t.Error("Rename must not return a pointer handed out earlier")
	}
	if fresh.Name != "stocks.csv" {
		t.Errorf("Earlier copy changed by rename: %s", fresh.Name)
	}
}

func TestLocalStore_ConcurrentAccess(t *testing.T) {
	store := createTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, err := store.Save("c.csv", strings.NewReader("a\n1\n"))
			if err != nil {
				t.Errorf("Failed to save: %v", err)
				return
			}
			if _, err := store.Get(info.ID); err != nil {
				t.Errorf("Failed to get: %v", err)
			}
		}()
	}
	wg.Wait()

	files, _ := store.List(0)
	if len(files) != 10 {
		t.Errorf("Expected 10 files, got %d", len(files))
	}
}
