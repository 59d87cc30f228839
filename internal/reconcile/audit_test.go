package reconcile_test

import (
	"context"
	"testing"

	"github.com/starford/munin/internal/docservice"
	"github.com/starford/munin/internal/models"
	"github.com/starford/munin/internal/reconcile"
	"github.com/starford/munin/internal/testutil"
)

func TestAuditRepairsMissingEmbedding(t *testing.T) {
	svc, meta, vec := testutil.TestService(t)
	auditor := reconcile.NewAuditor(svc, meta, vec, testutil.SilentLogger())
	ctx := context.Background()

	doc, err := svc.Create(ctx, docservice.Permissive, "", docservice.Input{
		Content: "should be indexed",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Simulate a lost vector entry.
	if err := vec.Delete(ctx, doc.Collection, doc.ID); err != nil {
		t.Fatal(err)
	}

	gaps := auditor.AuditPass(ctx)
	if len(gaps) != 1 {
		t.Fatalf("gaps = %d, want 1", len(gaps))
	}
	if gaps[0].Kind != models.GapMissingInVectorIndex || gaps[0].DocumentID != doc.ID {
		t.Errorf("gap = %+v", gaps[0])
	}

	// The gap is repaired in place.
	has, err := vec.Has(ctx, doc.Collection, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("embedding not restored by audit")
	}

	// A clean second pass.
	if gaps := auditor.AuditPass(ctx); len(gaps) != 0 {
		t.Errorf("second pass gaps = %v, want none", gaps)
	}
}

func TestAuditRepairsStaleEmbedding(t *testing.T) {
	svc, meta, vec := testutil.TestService(t)
	auditor := reconcile.NewAuditor(svc, meta, vec, testutil.SilentLogger())
	ctx := context.Background()

	doc, err := svc.Create(ctx, docservice.Permissive, "", docservice.Input{
		Content: "current content",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Overwrite the vector snapshot with drifted content.
	if err := vec.Upsert(ctx, doc.Collection, doc.ID, "stale content", nil); err != nil {
		t.Fatal(err)
	}

	gaps := auditor.AuditPass(ctx)
	if len(gaps) != 1 || gaps[0].Kind != models.GapStaleEmbedding {
		t.Fatalf("gaps = %+v, want one stale-embedding gap", gaps)
	}

	stored, err := vec.Content(ctx, doc.Collection, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored != "current content" {
		t.Errorf("content after repair = %q", stored)
	}
}

func TestAuditReportsExtraVectorEntries(t *testing.T) {
	svc, meta, vec := testutil.TestService(t)
	auditor := reconcile.NewAuditor(svc, meta, vec, testutil.SilentLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, docservice.Permissive, "", docservice.Input{
		Content: "legitimate document",
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// A vector entry with no metadata row.
	if err := vec.Upsert(ctx, "default", "orphan1", "no metadata row", nil); err != nil {
		t.Fatal(err)
	}

	gaps := auditor.AuditPass(ctx)
	found := false
	for _, g := range gaps {
		if g.Kind == models.GapMissingInMetadataStore && g.Collection == "default" {
			found = true
		}
	}
	if !found {
		t.Errorf("gaps = %+v, want a missing-in-metadata report", gaps)
	}

	// Legacy entries are reported, never deleted.
	has, err := vec.Has(ctx, "default", "orphan1")
	if err != nil {
		t.Fatal(err)
	}
	if !has {
		t.Error("audit must not delete extra vector entries")
	}
}

func TestAuditSkipsMetadataOnlyDocuments(t *testing.T) {
	svc, meta, vec := testutil.TestService(t)
	auditor := reconcile.NewAuditor(svc, meta, vec, testutil.SilentLogger())
	ctx := context.Background()

	if _, err := svc.Create(ctx, docservice.Permissive, "", docservice.Input{
		Metadata: map[string]any{"kind": "marker"},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if gaps := auditor.AuditPass(ctx); len(gaps) != 0 {
		t.Errorf("gaps = %+v, metadata-only documents carry no embedding", gaps)
	}
}
