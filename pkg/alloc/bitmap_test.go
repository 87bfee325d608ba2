package alloc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/weberc2/easyfs/pkg/bcache"
	"github.com/weberc2/easyfs/pkg/io"
	. "github.com/weberc2/easyfs/pkg/types"
)

type BitmapSuite struct {
	suite.Suite
	cache *bcache.Manager
}

func (suite *BitmapSuite) fresh(bm Bitmap) uint32 {
	suite.T().Helper()
	bit, err := bm.Alloc(suite.cache)
	suite.Require().NoError(err)
	return bit
}

func (suite *BitmapSuite) full(bm Bitmap) {
	suite.T().Helper()
	bit, err := bm.Alloc(suite.cache)
	suite.True(
		errors.Is(err, ErrExhausted),
		"bitmap should be full but allocated %d (err: %v)",
		bit,
		err,
	)
}

func (suite *BitmapSuite) count(bm Bitmap) uint32 {
	suite.T().Helper()
	count, err := bm.Count(suite.cache)
	suite.Require().NoError(err)
	return count
}

func (suite *BitmapSuite) SetupTest() {
	suite.cache = bcache.New(io.NewMemoryDevice(16), nil)
}

func (suite *BitmapSuite) TestMaximum() {
	suite.Equal(uint32(3*4096), New(2, 3).Maximum())
}

func (suite *BitmapSuite) TestFirstFit() {
	bm := New(2, 2)
	for i := uint32(0); i < 70; i++ {
		suite.Equal(i, suite.fresh(bm))
	}
	suite.Require().NoError(bm.Dealloc(suite.cache, 3))
	suite.Require().NoError(bm.Dealloc(suite.cache, 65))
	suite.Equal(uint32(3), suite.fresh(bm))
	suite.Equal(uint32(65), suite.fresh(bm))
	suite.Equal(uint32(70), suite.fresh(bm))
}

func (suite *BitmapSuite) TestAllocAll() {
	bm := New(1, 2)
	for i := 0; i < 2*BitsPerBlock; i++ {
		suite.fresh(bm)
	}
	suite.full(bm)
	suite.full(bm)
	suite.Equal(bm.Maximum(), suite.count(bm))
}

func (suite *BitmapSuite) TestCrossesBlocks() {
	bm := New(4, 2)
	for i := 0; i < BitsPerBlock; i++ {
		suite.fresh(bm)
	}
	suite.Equal(uint32(BitsPerBlock), suite.fresh(bm))

	// the second bit of the second bitmap block is word 0, bit 1 of block 5
	var word byte
	suite.Require().NoError(suite.cache.Read(5, 0, 1, func(p []byte) error {
		word = p[0]
		return nil
	}))
	suite.Equal(byte(1), word)
}

func (suite *BitmapSuite) TestConservation() {
	bm := New(1, 1)
	r := rand.New(rand.NewSource(42))
	var live []uint32
	allocs, deallocs := 0, 0
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && r.Intn(3) == 0 {
			j := r.Intn(len(live))
			suite.Require().NoError(bm.Dealloc(suite.cache, live[j]))
			live = append(live[:j], live[j+1:]...)
			deallocs++
			continue
		}
		live = append(live, suite.fresh(bm))
		allocs++
	}
	suite.Equal(uint32(allocs-deallocs), suite.count(bm))
	for _, bit := range live {
		set, err := bm.IsSet(suite.cache, bit)
		suite.Require().NoError(err)
		suite.True(set, "bit %d should be set", bit)
	}
}

func (suite *BitmapSuite) TestDoubleFreePanics() {
	bm := New(1, 1)
	bit := suite.fresh(bm)
	suite.Require().NoError(bm.Dealloc(suite.cache, bit))
	suite.Panics(func() { _ = bm.Dealloc(suite.cache, bit) })
}

func (suite *BitmapSuite) TestOutOfRangePanics() {
	bm := New(1, 1)
	suite.Panics(func() { _ = bm.Dealloc(suite.cache, uint32(BitsPerBlock)) })
}

func TestBitmap(t *testing.T) {
	suite.Run(t, new(BitmapSuite))
}
