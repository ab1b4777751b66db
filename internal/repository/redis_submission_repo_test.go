package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kursadbilgin/incident-outbox/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

func newTestRedisRepo(t *testing.T) (*RedisSubmissionRepo, *miniredis.Miniredis, *time.Time) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	repo, err := NewRedisSubmissionRepo(rdb, "")
	if err != nil {
		t.Fatalf("NewRedisSubmissionRepo() error = %v", err)
	}

	now := time.Unix(1_700_000_000, 0)
	repo.now = func() time.Time { return now }
	return repo, mr, &now
}

func TestRedisSubmissionRepoUpsertGetAll(t *testing.T) {
	t.Parallel()

	repo, _, now := newTestRedisRepo(t)
	ctx := context.Background()

	first := domain.NewSubmission("inc-1", domain.FormTypeAccidentData, map[string]string{"placa": "OLD"})
	if err := repo.Upsert(ctx, &first); err != nil {
		t.Fatalf("Upsert(first) error = %v", err)
	}
	createdAt := first.CreatedAt

	*now = now.Add(time.Second)
	second := domain.NewSubmission("inc-1", domain.FormTypeCrashReceipt, nil)
	if err := repo.Upsert(ctx, &second); err != nil {
		t.Fatalf("Upsert(second) error = %v", err)
	}

	*now = now.Add(time.Second)
	replaced := domain.NewSubmission("inc-1", domain.FormTypeAccidentData, map[string]string{"placa": "NEW"})
	if err := repo.Upsert(ctx, &replaced); err != nil {
		t.Fatalf("Upsert(replaced) error = %v", err)
	}
	if !replaced.CreatedAt.Equal(createdAt) {
		t.Fatalf("CreatedAt = %s, want original %s", replaced.CreatedAt, createdAt)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("GetAll() len = %d, want 2", len(all))
	}
	if all[0].Key != "inc-1-DADOS ACIDENTE" || all[1].Key != "inc-1-RECIBO BATIDA" {
		t.Fatalf("order = [%s, %s]", all[0].Key, all[1].Key)
	}
	if all[0].Fields["placa"] != "NEW" {
		t.Fatalf("Fields[placa] = %q, want NEW", all[0].Fields["placa"])
	}
	if all[0].Status != domain.StatusPending {
		t.Fatalf("Status = %s, want %s", all[0].Status, domain.StatusPending)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("Count() = %d, want 2", count)
	}
}

func TestRedisSubmissionRepoGetAndRemove(t *testing.T) {
	t.Parallel()

	repo, _, _ := newTestRedisRepo(t)
	ctx := context.Background()

	s := domain.NewSubmission("inc-9", domain.FormTypeCrashReceipt, map[string]string{"condutor": "Maria"})
	if err := repo.Upsert(ctx, &s); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, s.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.IncidentID != "inc-9" || got.Fields["condutor"] != "Maria" {
		t.Fatalf("Get() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be set from the order set")
	}

	if err := repo.Remove(ctx, s.Key); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := repo.Remove(ctx, s.Key); err != nil {
		t.Fatalf("Remove() on absent key error = %v", err)
	}
	if _, err := repo.Get(ctx, s.Key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}

	all, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll() error = %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("GetAll() len = %d, want 0", len(all))
	}
}

func TestRedisSubmissionRepoStorageUnavailable(t *testing.T) {
	t.Parallel()

	repo, mr, _ := newTestRedisRepo(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := domain.NewSubmission("inc-1", domain.FormTypeAccidentData, nil)
	if err := repo.Upsert(ctx, &s); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("Upsert() error = %v, want ErrStorageUnavailable", err)
	}
	if _, err := repo.Count(ctx); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("Count() error = %v, want ErrStorageUnavailable", err)
	}
}

func TestNewRedisSubmissionRepoRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisSubmissionRepo(nil, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
}
