package certificate_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/eventdesk/internal/certificate"
	"github.com/notifyhub/eventdesk/internal/domain"
	"github.com/notifyhub/eventdesk/internal/qr"
	"github.com/notifyhub/eventdesk/internal/repository"
	"github.com/notifyhub/eventdesk/internal/signing"
)

type stubRenderer struct {
	calls int
	last  certificate.Data
	err   error
}

func (r *stubRenderer) Render(d certificate.Data) ([]byte, error) {
	r.calls++
	r.last = d
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-stub " + d.Number), nil
}

var issued = time.Date(2026, 10, 19, 18, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*repository.MockDB, *repository.Store, *certificate.MemoryFiles, *stubRenderer, *certificate.Generator) {
	t.Helper()
	ctx := context.Background()
	db := repository.NewMockDB()
	store := db.Store()
	_ = store.Users.Create(ctx, &domain.User{ID: "u1", Name: "Ada Lovelace", Email: "ada@example.com"})
	_ = store.Users.Create(ctx, &domain.User{ID: "u2", Name: "Alan Turing", Email: "alan@example.com"})
	_ = store.Events.Create(ctx, &domain.Event{ID: "ev1", Title: "GopherCon", Venue: "Hall A", StartTime: issued.Add(-8 * time.Hour)})
	_ = store.Registrations.Create(ctx, &domain.Registration{ID: "r1", EventID: "ev1", UserID: "u1", Status: domain.RegistrationAttended})
	_ = store.Registrations.Create(ctx, &domain.Registration{ID: "r2", EventID: "ev1", UserID: "u2", Status: domain.RegistrationRegistered})

	signer, err := signing.NewSigner("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	files := certificate.NewMemoryFiles()
	renderer := &stubRenderer{}
	gen := certificate.NewGenerator(store, qr.NewCodec(signer), renderer, files, zap.NewNop(),
		certificate.WithClock(func() time.Time { return issued }))
	return db, store, files, renderer, gen
}

func TestGenerator_Generate(t *testing.T) {
	_, store, files, renderer, gen := setup(t)
	ctx := context.Background()

	cert, created, err := gen.Generate(ctx, "ev1", "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new certificate")
	}
	if cert.Number != domain.CertificateNumber(issued, cert.ID) {
		t.Errorf("unexpected number %q", cert.Number)
	}
	if !files.Has(certificate.FileName(cert.Number)) {
		t.Error("certificate file not stored")
	}
	if renderer.last.UserName != "Ada Lovelace" || renderer.last.EventTitle != "GopherCon" || len(renderer.last.QRCode) == 0 {
		t.Errorf("renderer got %+v", renderer.last)
	}
	if _, err := store.Certificates.GetByNumber(ctx, cert.Number); err != nil {
		t.Errorf("certificate not recorded: %v", err)
	}
}

func TestGenerator_GenerateIsIdempotent(t *testing.T) {
	_, _, files, renderer, gen := setup(t)
	ctx := context.Background()

	first, _, err := gen.Generate(ctx, "ev1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	second, created, err := gen.Generate(ctx, "ev1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected the existing certificate, got created=%v id=%s", created, second.ID)
	}
	if renderer.calls != 1 || files.Len() != 1 {
		t.Errorf("existing certificate must short-circuit: renders=%d files=%d", renderer.calls, files.Len())
	}
}

func TestGenerator_RequiresAttendance(t *testing.T) {
	_, _, _, _, gen := setup(t)
	ctx := context.Background()

	if _, _, err := gen.Generate(ctx, "ev1", "u2"); !errors.Is(err, domain.ErrNotAttended) {
		t.Fatalf("expected ErrNotAttended, got %v", err)
	}
	if _, _, err := gen.Generate(ctx, "ev1", "nobody"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerator_RecordFailureRemovesFile(t *testing.T) {
	db, _, files, _, gen := setup(t)
	db.CreateCertificateErr = errors.New("connection refused")

	if _, _, err := gen.Generate(context.Background(), "ev1", "u1"); err == nil {
		t.Fatal("expected error")
	}
	if files.Len() != 0 {
		t.Error("orphaned file left behind")
	}
}

func TestGenerator_Regenerate(t *testing.T) {
	_, store, files, _, gen := setup(t)
	ctx := context.Background()

	old, _, err := gen.Generate(ctx, "ev1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	fresh, created, err := gen.Regenerate(ctx, "ev1", "u1", time.Time{})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if !created || fresh.ID == old.ID || fresh.Number == old.Number {
		t.Fatal("expected a new certificate")
	}
	if files.Has(certificate.FileName(old.Number)) || !files.Has(certificate.FileName(fresh.Number)) {
		t.Error("old file should be replaced by the new one")
	}
	if _, err := store.Certificates.GetByNumber(ctx, old.Number); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("old record should be gone, got %v", err)
	}
}

func TestGenerator_RegenerateOncePerRequest(t *testing.T) {
	_, store, files, renderer, _ := setup(t)
	ctx := context.Background()
	signer, _ := signing.NewSigner("test-secret")
	current := issued
	gen := certificate.NewGenerator(store, qr.NewCodec(signer), renderer, files, zap.NewNop(),
		certificate.WithClock(func() time.Time { return current }))

	old, _, err := gen.Generate(ctx, "ev1", "u1")
	if err != nil {
		t.Fatal(err)
	}

	requested := issued.Add(time.Hour)
	current = requested.Add(time.Second)
	fresh, created, err := gen.Regenerate(ctx, "ev1", "u1", requested)
	if err != nil {
		t.Fatal(err)
	}
	if !created || fresh.ID == old.ID {
		t.Fatalf("expected a replacement, got %+v created=%v", fresh, created)
	}

	// Same request handled again later.
	current = requested.Add(time.Minute)
	again, created, err := gen.Regenerate(ctx, "ev1", "u1", requested)
	if err != nil {
		t.Fatal(err)
	}
	if created || again.ID != fresh.ID || again.Number != fresh.Number {
		t.Fatalf("redelivery must keep %s, got %s created=%v", fresh.Number, again.Number, created)
	}
	if !files.Has(certificate.FileName(fresh.Number)) {
		t.Error("kept certificate lost its file")
	}
	if renderer.calls != 2 {
		t.Errorf("expected 2 renders, got %d", renderer.calls)
	}
}

func TestPDFRenderer(t *testing.T) {
	signer, _ := signing.NewSigner("k")
	signed, err := qr.NewCodec(signer).BuildCertificateQR("CERT-20261019-ABCDEF12", "Zoë", "GopherCon", issued)
	if err != nil {
		t.Fatal(err)
	}
	png, err := qr.EncodePNG(signed, 128)
	if err != nil {
		t.Fatal(err)
	}

	out, err := certificate.NewPDFRenderer("EventDesk").Render(certificate.Data{
		Number: "CERT-20261019-ABCDEF12", UserName: "Zoë", EventTitle: "GopherCon",
		Venue: "Hall A", EventDate: issued, IssuedAt: issued, QRCode: png,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Errorf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
}

func TestDiskStore(t *testing.T) {
	dir := t.TempDir()
	s, err := certificate.NewDiskStore(dir, "https://events.example.com/files/")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	url, err := s.Save(ctx, "CERT-1.pdf", []byte("pdf"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if url != "https://events.example.com/files/CERT-1.pdf" {
		t.Errorf("url = %q", url)
	}
	if b, _ := os.ReadFile(filepath.Join(dir, "CERT-1.pdf")); string(b) != "pdf" {
		t.Errorf("file content %q", b)
	}

	if err := s.Delete(ctx, "CERT-1.pdf"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "CERT-1.pdf"); err != nil {
		t.Errorf("deleting a missing file should succeed: %v", err)
	}
	if _, err := s.Save(ctx, "../escape.pdf", nil); err == nil {
		t.Error("path traversal must be rejected")
	}
}
