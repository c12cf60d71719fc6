package services

// TitleThresholds: minimum point balance for each title, highest first.
var TitleThresholds = []struct {
	Title     string
	MinPoints int64
}{
	{"Legend", 5000},
	{"Diamond", 2500},
	{"Platinum", 1000},
	{"Gold", 500},
	{"Silver", 250},
	{"Bronze", 100},
	{"Rookie", 0},
}

// TitleFor returns the active title for a point balance.
func TitleFor(points int64) string {
	for _, t := range TitleThresholds {
		if points >= t.MinPoints {
			return t.Title
		}
	}
	return "Rookie"
}
