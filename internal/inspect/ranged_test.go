package inspect

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEntity is an in-memory entity whose children are their own index.
type fakeEntity struct {
	mu sync.Mutex

	total int
	valid bool
	limit int

	// honorLimit makes CountChildren stop at the limit hint.
	honorLimit bool
	// shortBy makes GetChildren return fewer children than it could.
	shortBy int

	countErr    error
	childrenErr error

	countCalls int
	getCalls   [][2]int
}

func newFake(total int) *fakeEntity {
	return &fakeEntity{total: total, valid: true}
}

func (f *fakeEntity) IsValid(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid
}

func (f *fakeEntity) SetChildrenLimit(n int) {
	f.mu.Lock()
	f.limit = n
	f.mu.Unlock()
}

func (f *fakeEntity) CountChildren(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.countCalls++
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.honorLimit && f.limit > 0 {
		return min(f.total, f.limit), nil
	}
	return f.total, nil
}

func (f *fakeEntity) GetChildren(_ context.Context, start, count int) ([]Child, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls = append(f.getCalls, [2]int{start, count})
	if f.childrenErr != nil {
		return nil, f.childrenErr
	}

	end := min(start+count-f.shortBy, f.total)
	var out []Child
	for i := start; i < end; i++ {
		out = append(out, Item{Name: IndexName(i), Val: strconv.Itoa(i)})
	}
	return out, nil
}

func (f *fakeEntity) lastLimit() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limit
}

// values renders children as their values, with placeholders as MoreLabel.
func values(children []Child) []string {
	out := make([]string, 0, len(children))
	for _, c := range children {
		if IsMore(c) {
			out = append(out, MoreLabel)
			continue
		}
		out = append(out, c.Value())
	}
	return out
}

func TestRanged_CountChildren(t *testing.T) {
	cases := map[string]struct {
		offset   int
		pageSize int
		total    int
		expected int
	}{
		"DelegatesToWrappedEntity":          {offset: 0, pageSize: 100, total: 5, expected: 5},
		"LimitsToPageSizePlusOne":           {offset: 0, pageSize: 2, total: 5, expected: 3},
		"ExactlyFillsPage":                  {offset: 0, pageSize: 5, total: 5, expected: 5},
		"CountsFromOffset":                  {offset: 6, pageSize: 100, total: 10, expected: 4},
		"LimitsToPageSizePlusOneWithOffset": {offset: 6, pageSize: 2, total: 10, expected: 3},
		"OffsetAtEnd":                       {offset: 10, pageSize: 2, total: 10, expected: 0},
		"OffsetPastEnd":                     {offset: 20, pageSize: 2, total: 10, expected: 0},
		"EmptyEntity":                       {offset: 0, pageSize: 3, total: 0, expected: 0},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			for _, honor := range []bool{false, true} {
				inner := newFake(tc.total)
				inner.honorLimit = honor

				n, err := StartFrom(tc.offset, tc.pageSize, inner).CountChildren(context.Background())
				require.NoError(t, err)
				assert.Equal(t, tc.expected, n, "honorLimit=%v", honor)
			}
		})
	}
}

func TestRanged_SetsChildrenLimitBeforeCount(t *testing.T) {
	inner := newFake(10)
	view := First(100, inner)

	assert.Equal(t, 0, inner.lastLimit())
	_, err := view.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 101, inner.lastLimit())

	_, err = StartFrom(6, 2, inner).CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, inner.lastLimit())
}

func TestRanged_LimitCoversOffset(t *testing.T) {
	inner := newFake(10)
	inner.honorLimit = true
	view := StartFrom(6, 2, inner)

	n, err := view.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, inner.lastLimit(), "limit reaches one past the page end")
	assert.Equal(t, 3, n)

	got, err := view.GetChildren(context.Background(), 0, n)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "[6]", got[0].DisplayName())
	assert.Equal(t, "[7]", got[1].DisplayName())
	assert.True(t, IsMore(got[2]))
}

func TestRanged_CountReassertsLimit(t *testing.T) {
	inner := newFake(50)
	inner.honorLimit = true
	first := First(2, inner)
	later := StartFrom(20, 2, inner)

	n, err := later.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = first.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A sibling lowered the limit in between; the later page still counts
	// correctly because it sets its own hint again.
	n, err = later.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRanged_GetChildren(t *testing.T) {
	cases := map[string]struct {
		offset   int
		pageSize int
		total    int
		start    int
		count    int
		expected []string
	}{
		"DelegatesToWrappedEntity": {
			pageSize: 100, total: 10, start: 0, count: 2,
			expected: []string{"0", "1"},
		},
		"AddsMoreWhenInRange": {
			pageSize: 2, total: 10, start: 0, count: 3,
			expected: []string{"0", "1", MoreLabel},
		},
		"AddsMoreWhenOnlyUpperPartRequested": {
			pageSize: 5, total: 10, start: 4, count: 2,
			expected: []string{"4", MoreLabel},
		},
		"NoMoreWhenAllElementsFit": {
			pageSize: 2, total: 2, start: 0, count: 2,
			expected: []string{"0", "1"},
		},
		"NoMoreWhenBoundaryNotRequested": {
			pageSize: 2, total: 10, start: 0, count: 2,
			expected: []string{"0", "1"},
		},
		"AddsMoreWithOffset": {
			offset: 6, pageSize: 2, total: 10, start: 1, count: 2,
			expected: []string{"7", MoreLabel},
		},
		"NoMoreWithOffsetWhenBoundaryNotRequested": {
			offset: 6, pageSize: 2, total: 10, start: 0, count: 2,
			expected: []string{"6", "7"},
		},
		"CapsAtPageSizeWhenMoreRequested": {
			pageSize: 2, total: 10, start: 0, count: 5,
			expected: []string{"0", "1", MoreLabel},
		},
		"ReturnsAllWhenFewerThanPage": {
			pageSize: 100, total: 2, start: 0, count: 5,
			expected: []string{"0", "1"},
		},
		"EmptyWhenRangeNotPresent": {
			pageSize: 2, total: 10, start: 7, count: 2,
			expected: []string{},
		},
		"OnlyMoreWhenStartAtBoundary": {
			pageSize: 2, total: 10, start: 2, count: 1,
			expected: []string{MoreLabel},
		},
		"ZeroCount": {
			pageSize: 2, total: 10, start: 0, count: 0,
			expected: []string{},
		},
		"LastPageExactlyFull": {
			offset: 8, pageSize: 2, total: 10, start: 0, count: 3,
			expected: []string{"8", "9"},
		},
		"LastPageShort": {
			offset: 9, pageSize: 2, total: 10, start: 0, count: 3,
			expected: []string{"9"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			view := StartFrom(tc.offset, tc.pageSize, newFake(tc.total))

			children, err := view.GetChildren(context.Background(), tc.start, tc.count)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, values(children)); diff != "" {
				t.Errorf("GetChildren(%d, %d) mismatch (-want +got):\n%s", tc.start, tc.count, diff)
			}
		})
	}
}

func TestRanged_DoesNotFetchWithoutRealSlots(t *testing.T) {
	inner := newFake(10)

	_, err := First(2, inner).GetChildren(context.Background(), 7, 2)
	require.NoError(t, err)
	_, err = First(2, inner).GetChildren(context.Background(), 2, 1)
	require.NoError(t, err)

	assert.Empty(t, inner.getCalls)
}

func TestRanged_MoreStartsFromNextItem(t *testing.T) {
	inner := newFake(10)

	children, err := First(2, inner).GetChildren(context.Background(), 0, 3)
	require.NoError(t, err)
	require.Len(t, children, 3)

	more := children[2]
	assert.Equal(t, MoreLabel, more.DisplayName())
	assert.Equal(t, " ", more.Value())

	next, ok := more.ChildAdapter().(*Ranged)
	require.True(t, ok, "continuation should expand into a ranged view")
	assert.Equal(t, 2, next.Offset())
	assert.Equal(t, 2, next.PageSize())
	assert.Same(t, inner, next.Inner())

	n, err := next.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	moreChildren, err := next.GetChildren(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", MoreLabel}, values(moreChildren))
}

func TestRanged_ChainVisitsEveryChildOnce(t *testing.T) {
	for total := 0; total <= 12; total++ {
		for pageSize := 1; pageSize <= 11; pageSize++ {
			var (
				got        = []string{}
				page Entity = First(pageSize, newFake(total))
				hops int
			)

			for page != nil {
				n, err := page.CountChildren(context.Background())
				require.NoError(t, err)

				children, err := page.GetChildren(context.Background(), 0, n)
				require.NoError(t, err)

				page = nil
				for _, c := range children {
					if IsMore(c) {
						page = c.ChildAdapter()
						continue
					}
					got = append(got, c.Value())
				}

				hops++
				require.LessOrEqual(t, hops, total+1, "chain did not terminate")
			}

			want := make([]string, 0, total)
			for i := 0; i < total; i++ {
				want = append(want, strconv.Itoa(i))
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("total=%d pageSize=%d (-want +got):\n%s", total, pageSize, diff)
			}
		}
	}
}

func TestRanged_ContinuationPresenceLaw(t *testing.T) {
	ctx := context.Background()

	for pageSize := 1; pageSize <= 4; pageSize++ {
		for total := 0; total <= 10; total++ {
			for offset := 0; offset <= total; offset++ {
				view := StartFrom(offset, pageSize, newFake(total))
				hasMore := total-offset > pageSize

				for start := 0; start <= pageSize+2; start++ {
					for count := 0; count <= pageSize+3; count++ {
						children, err := view.GetChildren(ctx, start, count)
						require.NoError(t, err)

						assert.LessOrEqual(t, len(children), count)
						if start < pageSize {
							assert.LessOrEqual(t, len(children), pageSize-start+1)
						} else if !hasMore {
							assert.Empty(t, children)
						} else {
							assert.LessOrEqual(t, len(children), 1)
						}

						wantMore := hasMore && start <= pageSize && pageSize < start+count
						gotMore := len(children) > 0 && IsMore(children[len(children)-1])
						assert.Equal(t, wantMore, gotMore,
							"pageSize=%d total=%d offset=%d start=%d count=%d",
							pageSize, total, offset, start, count)
					}
				}
			}
		}
	}
}

func TestRanged_UnderDeliveryDoesNotAffectContinuation(t *testing.T) {
	inner := newFake(10)
	inner.shortBy = 1

	children, err := First(3, inner).GetChildren(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", MoreLabel}, values(children))
}

func TestRanged_OverDeliveryIsClipped(t *testing.T) {
	inner := newFake(10)
	inner.shortBy = -3

	children, err := First(2, inner).GetChildren(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", MoreLabel}, values(children))

	children, err = StartFrom(4, 3, inner).GetChildren(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "6"}, values(children))
}

func TestRanged_CountsOnlyWhenBoundaryRequested(t *testing.T) {
	inner := newFake(10)
	view := First(5, inner)

	_, err := view.GetChildren(context.Background(), 0, 5)
	require.NoError(t, err)
	_, err = view.GetChildren(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Zero(t, inner.countCalls)

	_, err = view.GetChildren(context.Background(), 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.countCalls)
}

func TestRanged_NegativeStart(t *testing.T) {
	inner := newFake(10)

	children, err := StartFrom(4, 3, inner).GetChildren(context.Background(), -2, 4)
	require.NoError(t, err)
	assert.Empty(t, children)
	assert.Empty(t, inner.getCalls)
	assert.Zero(t, inner.countCalls)
}

func TestRanged_IsValidDelegates(t *testing.T) {
	valid := newFake(1)
	invalid := newFake(1)
	invalid.valid = false

	assert.True(t, First(100, valid).IsValid(context.Background()))
	assert.False(t, First(100, invalid).IsValid(context.Background()))
	assert.False(t, StartFrom(50, 100, invalid).IsValid(context.Background()))
}

func TestRanged_PropagatesErrors(t *testing.T) {
	errCount := errors.New("count failed")
	errChildren := errors.New("children failed")

	inner := newFake(10)
	inner.countErr = errCount

	_, err := First(2, inner).CountChildren(context.Background())
	assert.ErrorIs(t, err, errCount)

	_, err = First(2, inner).GetChildren(context.Background(), 0, 3)
	assert.ErrorIs(t, err, errCount)

	inner = newFake(10)
	inner.childrenErr = errChildren

	_, err = First(2, inner).GetChildren(context.Background(), 0, 2)
	assert.ErrorIs(t, err, errChildren)
}

func TestRanged_InvalidConstruction(t *testing.T) {
	assert.PanicsWithError(t, "page size must be positive: 0", func() {
		First(0, newFake(1))
	})
	assert.PanicsWithError(t, "page offset must not be negative: -1", func() {
		StartFrom(-1, 2, newFake(1))
	})
}

func TestRanged_SetChildrenLimitIsIgnored(t *testing.T) {
	inner := newFake(10)
	view := First(2, inner)

	view.SetChildrenLimit(1)
	assert.Equal(t, 0, inner.lastLimit())

	n, err := view.CountChildren(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRanged_NestedViews(t *testing.T) {
	inner := newFake(10)
	outer := First(3, First(5, inner))

	children, err := outer.GetChildren(context.Background(), 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"0", "1", "2", MoreLabel}, values(children))

	next := children[3].ChildAdapter()
	children, err = next.GetChildren(context.Background(), 0, 4)
	require.NoError(t, err)
	// The inner view has 5 real children and its own placeholder at 5.
	assert.Equal(t, []string{"3", "4", MoreLabel}, values(children))
}

func TestRanged_ConcurrentPages(t *testing.T) {
	inner := newFake(1000)
	var wg sync.WaitGroup

	for offset := 0; offset < 1000; offset += 10 {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			children, err := StartFrom(offset, 10, inner).GetChildren(context.Background(), 0, 10)
			assert.NoError(t, err)
			assert.Len(t, children, 10)
			assert.Equal(t, strconv.Itoa(offset), children[0].Value())
		}(offset)
	}

	wg.Wait()
}

func TestRanged_String(t *testing.T) {
	assert.Equal(t, "ranged[4:+2]", StartFrom(4, 2, newFake(1)).String())
}
