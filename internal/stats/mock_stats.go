package stats

import "github.com/stretchr/testify/mock"

var (
	_ StatsProvider = (*StatsUpdater)(nil)
	_ StatsProvider = (*MockStatsUpdater)(nil)
)

type MockStatsUpdater struct {
	mock.Mock
}

// AllowUpdates accepts any number of Incr and Decr calls, for tests that
// don't assert on counters.
func (m *MockStatsUpdater) AllowUpdates() *MockStatsUpdater {
	m.On("Incr", mock.Anything).Maybe()
	m.On("Decr", mock.Anything).Maybe()
	return m
}

func (m *MockStatsUpdater) Incr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) RegisterMetric(name string) {
	m.Called(name)
}

func (m *MockStatsUpdater) Run() {
	m.Called()
}

func (m *MockStatsUpdater) Stop() {
	m.Called()
}
