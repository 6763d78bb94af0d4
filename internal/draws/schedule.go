package draws

import (
	"fmt"
	"strings"
	"time"
)

// Category is a recurring draw slot: a weekday, a time of day and a label.
type Category struct {
	ID       string       `json:"id"`
	Weekday  time.Weekday `json:"weekday"`
	DayName  string       `json:"day_name"`
	Time     string       `json:"time"`
	Label    string       `json:"label"`
	FullName string       `json:"full_name"`
}

type slot struct {
	time, label string
}

type scheduleDay struct {
	name    string
	weekday time.Weekday
	slots   []slot
}

var schedule = []scheduleDay{
	{"Lundi", time.Monday, []slot{{"10H", "Réveil"}, {"13H", "Étoile"}, {"16H", "Akwaba"}, {"18H15", "Monday Special"}}},
	{"Mardi", time.Tuesday, []slot{{"10H", "La Matinale"}, {"13H", "Émergence"}, {"16H", "Sika"}, {"18H15", "Lucky Tuesday"}}},
	{"Mercredi", time.Wednesday, []slot{{"10H", "Première Heure"}, {"13H", "Fortune"}, {"16H", "Baraka"}, {"18H15", "Midweek"}}},
	{"Jeudi", time.Thursday, []slot{{"10H", "Kado"}, {"13H", "Privilège"}, {"16H", "Monni"}, {"18H15", "Fortune Thursday"}}},
	{"Vendredi", time.Friday, []slot{{"10H", "Cash"}, {"13H", "Solution"}, {"16H", "Wari"}, {"18H15", "Friday Bonanza"}}},
	{"Samedi", time.Saturday, []slot{{"10H", "Soutra"}, {"13H", "Diamant"}, {"16H", "Moaye"}, {"18H15", "National"}}},
	{"Dimanche", time.Sunday, []slot{{"10H", "Bénédiction"}, {"13H", "Prestige"}, {"16H", "Awalé"}, {"18H15", "Espoir"}}},
}

var categories = buildCategories()

func buildCategories() []Category {
	var out []Category
	for _, day := range schedule {
		for _, s := range day.slots {
			out = append(out, Category{
				ID:       categoryID(day.name, s.time, s.label),
				Weekday:  day.weekday,
				DayName:  day.name,
				Time:     s.time,
				Label:    s.label,
				FullName: fmt.Sprintf("%s %s - %s", day.name, s.time, s.label),
			})
		}
	}
	return out
}

func categoryID(day, tm, label string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(label)), "-")
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(day), strings.ToLower(tm), slug)
}

// Categories returns every scheduled draw category, Monday first.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CategoryByID looks up a scheduled category.
func CategoryByID(id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// NextDrawDate returns the first calendar day strictly after now on which the
// category draws. Unknown categories draw the next day.
func NextDrawDate(categoryID string, now time.Time) time.Time {
	day := Day(now)
	c, ok := CategoryByID(categoryID)
	if !ok {
		return day.AddDate(0, 0, 1)
	}
	delta := (int(c.Weekday) - int(day.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return day.AddDate(0, 0, delta)
}
