package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
)

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	b := New()

	run := db.Run{ID: "r1", Tile: "22WEV", Start: time.Now(), End: time.Now().AddDate(0, 1, 0), Status: common.StatusPENDING}
	if err := b.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := b.CreateRun(ctx, run); !errors.As(err, &db.ErrAlreadyExists{}) {
		t.Errorf("expecting ErrAlreadyExists, got %v", err)
	}

	day := time.Date(2017, 6, 5, 0, 0, 0, 0, time.UTC)
	if _, err := b.CreateDate(ctx, db.Date{RunID: "r1", Date: day, Status: common.StatusNEW}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.CreateDate(ctx, db.Date{RunID: "missing", Date: day}); !errors.As(err, &db.ErrNotFound{}) {
		t.Errorf("expecting ErrNotFound, got %v", err)
	}

	attrs := common.DateAttrs{UsableFraction: 80, CloudFraction: 5}
	if err := b.UpdateDate(ctx, "r1", day, common.StatusOBSERVED, common.ReasonNone, "", attrs); err != nil {
		t.Fatal(err)
	}

	dates, err := b.Dates(ctx, "r1", common.StatusOBSERVED.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(dates) != 1 || dates[0].Attrs != attrs {
		t.Errorf("unexpected dates: %v", dates)
	}

	count, err := b.DatesStatus(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if count.Observed != 1 || count.New != 0 {
		t.Errorf("unexpected count: %+v", count)
	}
}

func TestUpdateMissingDate(t *testing.T) {
	ctx := context.Background()
	b := New()
	err := b.UpdateDate(ctx, "r1", time.Now(), common.StatusFAILED, common.ReasonCorrupt, "", common.DateAttrs{})
	if !errors.As(err, &db.ErrNotFound{}) {
		t.Errorf("expecting ErrNotFound, got %v", err)
	}
}
