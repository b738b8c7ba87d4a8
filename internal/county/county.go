// Package county holds the fixed mapping between Ohio county names and
// the two-digit county numbers used as the partition key of the voter
// table. The table is deliberately hardcoded: the set of counties does
// not change, and an unrecognized name must fail an import before any
// destructive action.
package county

import "sort"

var numbers = map[string]string{
	"Adams": "01", "Allen": "02", "Ashland": "03", "Ashtabula": "04", "Athens": "05",
	"Auglaize": "06", "Belmont": "07", "Brown": "08", "Butler": "09", "Carroll": "10",
	"Champaign": "11", "Clark": "12", "Clermont": "13", "Clinton": "14", "Columbiana": "15",
	"Coshocton": "16", "Crawford": "17", "Cuyahoga": "18", "Darke": "19", "Defiance": "20",
	"Delaware": "21", "Erie": "22", "Fairfield": "23", "Fayette": "24", "Franklin": "25",
	"Fulton": "26", "Gallia": "27", "Geauga": "28", "Greene": "29", "Guernsey": "30",
	"Hamilton": "31", "Hancock": "32", "Hardin": "33", "Harrison": "34", "Henry": "35",
	"Highland": "36", "Hocking": "37", "Holmes": "38", "Huron": "39", "Jackson": "40",
	"Jefferson": "41", "Knox": "42", "Lake": "43", "Lawrence": "44", "Licking": "45",
	"Logan": "46", "Lorain": "47", "Lucas": "48", "Madison": "49", "Mahoning": "50",
	"Marion": "51", "Medina": "52", "Meigs": "53", "Mercer": "54", "Miami": "55",
	"Monroe": "56", "Montgomery": "57", "Morgan": "58", "Morrow": "59", "Muskingum": "60",
	"Noble": "61", "Ottawa": "62", "Paulding": "63", "Perry": "64", "Pickaway": "65",
	"Pike": "66", "Portage": "67", "Preble": "68", "Putnam": "69", "Richland": "70",
	"Ross": "71", "Sandusky": "72", "Scioto": "73", "Seneca": "74", "Shelby": "75",
	"Stark": "76", "Summit": "77", "Trumbull": "78", "Tuscarawas": "79", "Union": "80",
	"Van Wert": "81", "Vinton": "82", "Warren": "83", "Washington": "84", "Wayne": "85",
	"Williams": "86", "Wood": "87", "Wyandot": "88",
}

var names map[string]string

func init() {
	names = make(map[string]string, len(numbers))
	for name, num := range numbers {
		names[num] = name
	}
}

// Number returns the county number for a county name. ok is false for
// names not in the table.
func Number(name string) (string, bool) {
	num, ok := numbers[name]
	return num, ok
}

// Name returns the county name for a county number, or "" if unknown.
func Name(number string) string {
	return names[number]
}

// Names returns all county names in alphabetical order.
func Names() []string {
	out := make([]string, 0, len(numbers))
	for name := range numbers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of counties in the table.
func Count() int {
	return len(numbers)
}
