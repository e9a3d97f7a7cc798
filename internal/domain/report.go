package domain

// Report gathers everything a scenario run produced for rendering.
type Report struct {
	Scenario string        `json:"scenario"`
	Region   string        `json:"region,omitempty"`
	Seed     int64         `json:"seed"`
	Tables   []TableReport `json:"tables"`

	// Electorate is set when a population and turnout were supplied.
	Electorate *Electorate `json:"electorate,omitempty"`
}

// TableReport holds the results computed for one poll table. Fields are
// nil when the scenario has no unit producing them.
type TableReport struct {
	Name       string             `json:"name"`
	Snapshot   *Snapshot          `json:"snapshot,omitempty"`
	Alliances  []AllianceShare    `json:"alliances,omitempty"`
	Seats      []SeatAllocation   `json:"seats,omitempty"`
	Simulation *SimulationSummary `json:"simulation,omitempty"`
}

// Electorate estimates the number of voters from a population and turnout.
type Electorate struct {
	Population int64   `json:"population"`
	Turnout    float64 `json:"turnout"`
	Voters     int64   `json:"voters"`
}

// NewElectorate computes the expected voter count. turnout is a percentage.
func NewElectorate(population int64, turnout float64) Electorate {
	return Electorate{
		Population: population,
		Turnout:    turnout,
		Voters:     int64(float64(population) * turnout / 100),
	}
}
