package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/fsn1995/RemoteIceSurfaceAnalyser/common"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/interface/ingestion"
	"github.com/fsn1995/RemoteIceSurfaceAnalyser/raster"
)

// MokePublisher implements messaging.Publisher
type MokePublisher struct {
	mu       sync.Mutex
	messages [][]byte
}

// Publish implements messaging.Publisher
func (p *MokePublisher) Publish(ctx context.Context, data ...[]byte) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, data...)
	return nil
}

func (p *MokePublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// scriptedProvider implements ingestion.Provider from a fixed script of
// band sets and errors, keyed by day.
type scriptedProvider struct {
	ice  *raster.Mask
	sets map[string]*ingestion.BandSet
	errs map[string]error
}

func (p *scriptedProvider) AcquireBandSet(ctx context.Context, tile string, date time.Time) (*ingestion.BandSet, error) {
	key := date.Format("20060102")
	if err, ok := p.errs[key]; ok {
		return nil, err
	}
	if bs, ok := p.sets[key]; ok {
		return bs, nil
	}
	return nil, ingestion.ErrUnavailable{Tile: tile, Date: date}
}

func (p *scriptedProvider) IceMask(ctx context.Context, tile string) (*raster.Mask, error) {
	if p.ice == nil {
		return nil, ingestion.ErrUnavailable{Tile: tile}
	}
	return p.ice, nil
}

var ctx context.Context

var _ = BeforeSuite(func() {
	ctx = context.Background()
})

func TestWorkflow(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Workflow Suite")
}

// bandSet builds a uniform band set: every band at refl, the cloud layer
// at cloudProb percent on the first nCloudy pixels.
func bandSet(ref raster.GeoRef, tile string, date time.Time, refl, cloudProb float64, nCloudy int) *ingestion.BandSet {
	bs := &ingestion.BandSet{
		Tile:      tile,
		Date:      date,
		Ref:       ref,
		Bands:     map[common.Band]*raster.Grid{},
		CloudProb: raster.Full(ref, 0),
	}
	for _, b := range common.Bands() {
		bs.Bands[b] = raster.Full(ref, refl)
	}
	for i := 0; i < nCloudy; i++ {
		bs.CloudProb.Data[i] = cloudProb
	}
	return bs
}
