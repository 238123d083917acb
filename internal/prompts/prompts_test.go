package prompts

import (
	"strings"
	"testing"

	"github.com/tsturo/debussy/internal/model"
)

func TestRenderDeveloperInterpolatesBeadAndBase(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(model.RoleDeveloper, Data{BeadID: "bd-001", Base: "main"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "bd-001") || !strings.Contains(out, "feature/bd-001") {
		t.Fatalf("expected bead id interpolated, got:\n%s", out)
	}
	if !strings.Contains(out, "main") {
		t.Fatalf("expected base branch interpolated, got:\n%s", out)
	}
}

func TestRenderEveryRoleSucceeds(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	roles := []model.Role{
		model.RoleDeveloper, model.RoleReviewer, model.RoleSecurityReviewer,
		model.RoleIntegrator, model.RoleTester, model.RoleInvestigator,
	}
	for _, role := range roles {
		out, err := r.Render(role, Data{BeadID: "bd-001", Base: "main", Stage: model.StageDevelopment})
		if err != nil {
			t.Fatalf("Render(%s): %v", role, err)
		}
		if out == "" {
			t.Fatalf("Render(%s): expected non-empty prompt", role)
		}
	}
}

func TestRenderInvestigatorUsesConsolidatingTemplateAtThatStage(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := r.Render(model.RoleInvestigator, Data{BeadID: "bd-009", Stage: model.StageConsolidating})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "consolidating investigation findings") {
		t.Fatalf("expected consolidating-flavored prompt, got:\n%s", out)
	}
}
