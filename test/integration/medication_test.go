//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medportal/portal/internal/domain/medication"
)

func TestMedicineRepo_DueForRefillAndMarkWarned(t *testing.T) {
	ctx := context.Background()
	repo := medication.NewMedicineRepoPG(globalPool)
	patient := createPatient(t, ctx)
	today := time.Now().UTC().Truncate(24 * time.Hour)

	add := func(name string, endIn int) *medication.Medicine {
		m := &medication.Medicine{
			UserID:    patient.ID,
			Name:      name,
			Dosage:    "1 tablet",
			Frequency: "daily",
			StartDate: today.AddDate(0, 0, -30),
			EndDate:   today.AddDate(0, 0, endIn),
		}
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		return m
	}
	soon := add("soon", 5)
	later := add("later", 40)
	ended := add("ended", -2)

	due, err := repo.DueForRefill(ctx, today, today.AddDate(0, 0, medication.RefillThresholdDays))
	if err != nil {
		t.Fatal(err)
	}
	ids := map[uuid.UUID]bool{}
	for _, m := range due {
		ids[m.ID] = true
	}
	if !ids[soon.ID] {
		t.Error("expected the medicine ending in 5 days to be due")
	}
	if ids[later.ID] || ids[ended.ID] {
		t.Error("medicines outside the window must not be due")
	}

	ok, err := repo.MarkWarned(ctx, soon.ID, time.Now().UTC())
	if err != nil || !ok {
		t.Fatalf("first MarkWarned = %v, %v", ok, err)
	}
	ok, err = repo.MarkWarned(ctx, soon.ID, time.Now().UTC())
	if err != nil || ok {
		t.Fatalf("second MarkWarned = %v, %v, want false", ok, err)
	}

	due, err = repo.DueForRefill(ctx, today, today.AddDate(0, 0, medication.RefillThresholdDays))
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range due {
		if m.ID == soon.ID {
			t.Error("warned medicine should not be due again")
		}
	}

	list, err := repo.ListByUser(ctx, patient.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("expected 3 medicines, got %d", len(list))
	}
}
