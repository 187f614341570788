package vocab

import "github.com/machinemate/machinemate/internal/domain"

// Labels is the fixed equipment-type vocabulary ranked against every photo.
// It is data, not logic: adding a label never touches ranking code. Prompt
// texts are written the way the embedding model was trained to see captions.
var Labels = []domain.Label{
	{
		ID:          "chest_press_machine",
		DisplayName: "Chest Press Machine",
		Category:    "Upper Body",
		PromptText:  "a seated chest press machine with two horizontal pressing handles, a vertical back pad, and a weight stack",
		Synonyms:    []string{"machine chest press", "seated chest press"},
		Keywords:    []string{"pressing handles", "back pad", "weight stack"},
	},
	{
		ID:          "lat_pulldown",
		DisplayName: "Lat Pulldown",
		Category:    "Upper Body",
		PromptText:  "a lat pulldown machine with an overhead cable bar, thigh pads, and a seat facing a tall weight stack",
		Synonyms:    []string{"pulldown machine", "lat pull down"},
		Keywords:    []string{"overhead bar", "cable", "thigh pads"},
	},
	{
		ID:          "seated_cable_row",
		DisplayName: "Seated Cable Row",
		Category:    "Upper Body",
		PromptText:  "a seated cable row station with a low pulley, foot plates, and a long bench facing the cable",
		Synonyms:    []string{"cable row", "low row"},
		Keywords:    []string{"low pulley", "foot plates", "bench"},
	},
	{
		ID:          "seated_leg_press",
		DisplayName: "Seated Leg Press",
		Category:    "Lower Body",
		PromptText:  "a seated leg press machine with a large angled foot plate, reclined seat, and a weight sled",
		Synonyms:    []string{"leg press", "leg press machine"},
		Keywords:    []string{"angled foot plate", "sled", "reclined seat"},
	},
	{
		ID:          "shoulder_press_machine",
		DisplayName: "Shoulder Press Machine",
		Category:    "Upper Body",
		PromptText:  "a seated shoulder press machine with two overhead pressing handles above shoulder height and an upright back pad",
		Synonyms:    []string{"machine shoulder press", "overhead press machine"},
		Keywords:    []string{"overhead handles", "upright pad"},
	},
	{
		ID:          "treadmill",
		DisplayName: "Treadmill",
		Category:    "Cardio",
		PromptText:  "a treadmill with a running belt, side rails, and an electronic console",
		Synonyms:    []string{"running machine"},
		Keywords:    []string{"running belt", "console", "side rails"},
	},

	// Generic classes with no catalog machine behind them. They are valid
	// winners and surface as generic results that open manual browsing.
	{
		ID:          "free_weights",
		DisplayName: "Free Weights",
		Category:    "Free Weights",
		PromptText:  "a rack of dumbbells or barbells and weight plates in a gym free weights area",
		Synonyms:    []string{"dumbbells", "barbell"},
		Keywords:    []string{"dumbbell rack", "plates"},
	},
	{
		ID:          "cable_crossover",
		DisplayName: "Cable Crossover Station",
		Category:    "Upper Body",
		PromptText:  "a tall cable crossover station with two adjustable pulleys on a wide frame",
		Synonyms:    []string{"cable station", "functional trainer"},
		Keywords:    []string{"dual pulleys", "wide frame"},
	},
	{
		ID:          "stationary_bike",
		DisplayName: "Stationary Bike",
		Category:    "Cardio",
		PromptText:  "a stationary exercise bike with pedals, a saddle, and a small console",
		Synonyms:    []string{"exercise bike", "spin bike"},
		Keywords:    []string{"pedals", "saddle"},
	},
}

// LabelToMachine maps label ids to catalog machine ids. Unmapped labels
// are intentional: they produce generic results.
var LabelToMachine = map[string]string{
	"chest_press_machine":    "chest-press-machine",
	"lat_pulldown":           "lat-pulldown",
	"seated_cable_row":       "seated-cable-row",
	"seated_leg_press":       "seated-leg-press",
	"shoulder_press_machine": "shoulder-press-machine",
	"treadmill":              "treadmill",
}

// LabelByID returns the vocabulary entry for id, or nil when unknown.
func LabelByID(id string) *domain.Label {
	for i := range Labels {
		if Labels[i].ID == id {
			return &Labels[i]
		}
	}
	return nil
}
