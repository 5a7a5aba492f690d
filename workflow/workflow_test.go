package workflow_test

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/classifier"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	db "github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/database/memory"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/lut"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/service"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/workflow"
)

var _ = Describe("Workflow", func() {
	tile := "22WEV"
	ref := raster.GeoRef{Width: 2, Height: 2, Transform: [6]float64{0, 20, 0, 0, 0, -20}, CRS: "EPSG:32622"}
	day := func(d int) time.Time { return time.Date(2021, 7, d, 0, 0, 0, 0, time.UTC) }

	fullIce := func() *raster.Mask {
		ice := raster.NewMask(ref)
		for i := range ice.Data {
			ice.Data[i] = true
		}
		return ice
	}

	newTable := func() *lut.Table {
		table, err := lut.New([]lut.Row{
			{Reflectance: [common.NBands]float64{0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2}, GrainSize: 300, Density: 500, Impurity: 10},
			{Reflectance: [common.NBands]float64{0.6, 0.6, 0.6, 0.6, 0.6, 0.6, 0.6, 0.6, 0.6}, GrainSize: 900, Density: 700, Impurity: 40},
		})
		Expect(err).NotTo(HaveOccurred())
		return table
	}

	snow := classifier.Func(func(v [common.NBands]float64) common.Class { return common.ClassSnow })

	cfg := workflow.Config{
		MinArea:            40,
		CloudCoverThresh:   30,
		CloudProbThreshold: 50,
		RetrieveParams:     true,
		CadenceDays:        1,
		TemporalInfill:     true,
		Workers:            4,
	}

	Describe("ProcessTile", func() {
		var backend *memory.Backend
		var events *MokePublisher
		var provider *scriptedProvider
		var wf *workflow.Workflow

		BeforeEach(func() {
			backend = memory.New()
			events = &MokePublisher{}
			// day 1, 3, 5: clear acquisitions; day 2: no acquisition;
			// day 4: half the tile cloudy; day 6, 7: no acquisition.
			provider = &scriptedProvider{
				ice: fullIce(),
				sets: map[string]*ingestion.BandSet{
					"20210701": bandSet(ref, tile, day(1), 0.2, 0, 0),
					"20210703": bandSet(ref, tile, day(3), 0.4, 0, 0),
					"20210704": bandSet(ref, tile, day(4), 0.3, 90, 2),
					"20210705": bandSet(ref, tile, day(5), 0.6, 0, 0),
				},
			}
			wf = workflow.NewWorkflow(backend, provider, snow, newTable(), events)
		})

		It("processes a tile window end to end", func() {
			runID, ds, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(7)}, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(runID).NotTo(BeEmpty())

			run, err := wf.Run(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Status).To(Equal(common.StatusDONE))

			// observed 1, 3, 5; synthesized 2, 4; 6 and 7 have no future anchor
			Expect(ds.Len()).To(Equal(5))
			Expect(ds.At(day(1)).Source).To(Equal(common.StatusOBSERVED))
			Expect(ds.At(day(2)).Source).To(Equal(common.StatusSYNTHESIZED))
			Expect(ds.At(day(4)).Source).To(Equal(common.StatusSYNTHESIZED))
			Expect(ds.At(day(6))).To(BeNil())

			// day 2 albedo is the midpoint of days 1 and 3
			a1 := ds.At(day(1)).Vars[common.VarAlbedo].Data[0]
			a3 := ds.At(day(3)).Vars[common.VarAlbedo].Data[0]
			a2 := ds.At(day(2)).Vars[common.VarAlbedo].Data[0]
			Expect(a2).To(BeNumerically("~", (a1+a3)/2, 1e-12))

			// retrieval populated from the table
			Expect(ds.At(day(1)).Vars[common.VarGrain].Data[0]).To(Equal(300.0))
			Expect(ds.At(day(5)).Vars[common.VarGrain].Data[0]).To(Equal(900.0))

			counts, err := wf.DatesStatus(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(counts.Observed).To(Equal(int64(3)))
			Expect(counts.Synthesized).To(Equal(int64(2)))
			Expect(counts.Failed).To(Equal(int64(2)))
		})

		It("audits every decision of the run", func() {
			runID, _, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(7)}, cfg)
			Expect(err).NotTo(HaveOccurred())

			audit := wf.Audit(runID)
			Expect(audit).NotTo(BeNil())
			Expect(audit.Accepted).To(HaveLen(3))
			Expect(audit.Rejected).To(HaveLen(1))
			Expect(audit.Rejected[0].Date).To(Equal(day(4)))
			Expect(audit.Rejected[0].Reason).To(Equal(common.ReasonExcessCloud))
			Expect(audit.Synthesized).To(HaveLen(2))
			// acquire failures (2, 6, 7) plus the two unfillable gaps (6, 7)
			Expect(audit.Failed).To(HaveLen(5))

			Expect(wf.Audit("unknown")).To(BeNil())
		})

		It("publishes one result event per decision", func() {
			_, _, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(7)}, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(events.Len()).To(Equal(11))
		})

		It("keeps the rejection on record after synthesis", func() {
			runID, _, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(7)}, cfg)
			Expect(err).NotTo(HaveOccurred())

			dates, err := wf.Dates(ctx, runID, common.StatusSYNTHESIZED.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(dates).To(HaveLen(2))
			audit := wf.Audit(runID)
			Expect(audit.Rejected).To(HaveLen(1))
		})

		It("fails the run when the ice mask is missing", func() {
			provider.ice = nil
			runID, _, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(3)}, cfg)
			Expect(err).To(HaveOccurred())
			Expect(service.Fatal(err)).To(BeTrue())

			run, err := wf.Run(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Status).To(Equal(common.StatusFAILED))
		})

		It("rejects an invalid configuration before creating a run", func() {
			bad := cfg
			bad.MinArea = 150
			_, _, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(3)}, bad)
			Expect(err).To(HaveOccurred())
			Expect(service.Fatal(err)).To(BeTrue())

			runs, err := wf.Runs(ctx, tile)
			Expect(err).NotTo(HaveOccurred())
			Expect(runs).To(BeEmpty())
		})

		It("downsamples the merged series", func() {
			dcfg := cfg
			dcfg.DownsampleDays = 3
			_, ds, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(5)}, dcfg)
			Expect(err).NotTo(HaveOccurred())

			// days 1-3 collapse into one bucket, 4-5 into another
			Expect(ds.Len()).To(Equal(2))
			Expect(ds.At(day(1)).Source).To(Equal(common.StatusSYNTHESIZED))
			Expect(math.IsNaN(ds.At(day(1)).Vars[common.VarAlbedo].Data[0])).To(BeFalse())
		})

		It("keeps the run alive when a date disagrees on georeferencing", func() {
			shifted := ref
			shifted.CRS = "EPSG:32623"
			provider.sets["20210702"] = bandSet(shifted, tile, day(2), 0.4, 0, 0)

			runID, ds, err := wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(3)}, cfg)
			Expect(err).NotTo(HaveOccurred())

			run, err := wf.Run(ctx, runID)
			Expect(err).NotTo(HaveOccurred())
			Expect(run.Status).To(Equal(common.StatusDONE))

			// day 2 fails on its own and is synthesized from days 1 and 3
			audit := wf.Audit(runID)
			Expect(audit.Failed).To(HaveLen(1))
			Expect(audit.Failed[0].Date).To(Equal(day(2)))
			Expect(audit.Failed[0].Reason).To(Equal(common.ReasonInconsistentGeoreference))

			Expect(ds.Len()).To(Equal(3))
			Expect(ds.Ref.CRS).To(Equal(ref.CRS))
			Expect(ds.At(day(2)).Source).To(Equal(common.StatusSYNTHESIZED))
		})

		Describe("status API", func() {
			var runID string
			var handler http.Handler

			BeforeEach(func() {
				var err error
				runID, _, err = wf.ProcessTile(ctx, common.TileJob{Tile: tile, Start: day(1), End: day(7)}, cfg)
				Expect(err).NotTo(HaveOccurred())
				handler = wf.NewHandler()
			})

			get := func(path string) *httptest.ResponseRecorder {
				w := httptest.NewRecorder()
				handler.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
				return w
			}

			It("serves the run", func() {
				w := get("/runs/" + runID)
				Expect(w.Code).To(Equal(200))
				var run db.Run
				Expect(json.Unmarshal(w.Body.Bytes(), &run)).To(Succeed())
				Expect(run.Tile).To(Equal(tile))
				Expect(run.Status).To(Equal(common.StatusDONE))
			})

			It("lists runs filtered by tile", func() {
				var runs []db.Run
				Expect(json.Unmarshal(get("/runs?tile="+tile).Body.Bytes(), &runs)).To(Succeed())
				Expect(runs).To(HaveLen(1))
				Expect(json.Unmarshal(get("/runs?tile=21XWB").Body.Bytes(), &runs)).To(Succeed())
				Expect(runs).To(BeEmpty())
			})

			It("lists dates filtered by status", func() {
				var dates []db.Date
				Expect(json.Unmarshal(get("/runs/"+runID+"/dates/SYNTHESIZED").Body.Bytes(), &dates)).To(Succeed())
				Expect(dates).To(HaveLen(2))
				for _, d := range dates {
					Expect(d.Status).To(Equal(common.StatusSYNTHESIZED))
				}
			})

			It("counts the dates per status", func() {
				w := get("/runs/" + runID + "/status")
				Expect(w.Code).To(Equal(200))
				Expect(w.Body.String()).To(ContainSubstring("observed:    3"))
				Expect(w.Body.String()).To(ContainSubstring("synthesized: 2"))
			})

			It("serves the audit lists", func() {
				w := get("/runs/" + runID + "/audit")
				Expect(w.Code).To(Equal(200))
				var audit workflow.Audit
				Expect(json.Unmarshal(w.Body.Bytes(), &audit)).To(Succeed())
				Expect(audit.Accepted).To(HaveLen(3))
				Expect(audit.Rejected).To(HaveLen(1))
			})

			It("returns 404 for unknown runs", func() {
				Expect(get("/runs/nope").Code).To(Equal(404))
				Expect(get("/runs/nope/status").Code).To(Equal(404))
				Expect(get("/runs/nope/audit").Code).To(Equal(404))
			})
		})
	})
})
