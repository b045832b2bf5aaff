package layout

// bookTable maps a lower-case book id to its canonical title and its
// 1-66 book number, used whenever a manifest (or its absence) leaves
// title/number undetermined. NT books start at 40.
var bookTable = map[string]struct {
	Title  string
	Number int
}{
	"gen": {"Genesis", 1}, "exo": {"Exodus", 2}, "lev": {"Leviticus", 3}, "num": {"Numbers", 4},
	"deu": {"Deuteronomy", 5}, "jos": {"Joshua", 6}, "jdg": {"Judges", 7}, "rut": {"Ruth", 8},
	"1sa": {"1 Samuel", 9}, "2sa": {"2 Samuel", 10}, "1ki": {"1 Kings", 11}, "2ki": {"2 Kings", 12},
	"1ch": {"1 Chronicles", 13}, "2ch": {"2 Chronicles", 14}, "ezr": {"Ezra", 15}, "neh": {"Nehemiah", 16},
	"est": {"Esther", 17}, "job": {"Job", 18}, "psa": {"Psalms", 19}, "pro": {"Proverbs", 20},
	"ecc": {"Ecclesiastes", 21}, "sng": {"Song of Solomon", 22}, "isa": {"Isaiah", 23}, "jer": {"Jeremiah", 24},
	"lam": {"Lamentations", 25}, "ezk": {"Ezekiel", 26}, "dan": {"Daniel", 27}, "hos": {"Hosea", 28},
	"jol": {"Joel", 29}, "amo": {"Amos", 30}, "oba": {"Obadiah", 31}, "jon": {"Jonah", 32},
	"mic": {"Micah", 33}, "nam": {"Nahum", 34}, "hab": {"Habakkuk", 35}, "zep": {"Zephaniah", 36},
	"hag": {"Haggai", 37}, "zec": {"Zechariah", 38}, "mal": {"Malachi", 39},
	"mat": {"Matthew", 40}, "mrk": {"Mark", 41}, "luk": {"Luke", 42}, "jhn": {"John", 43},
	"act": {"Acts", 44}, "rom": {"Romans", 45}, "1co": {"1 Corinthians", 46}, "2co": {"2 Corinthians", 47},
	"gal": {"Galatians", 48}, "eph": {"Ephesians", 49}, "php": {"Philippians", 50}, "col": {"Colossians", 51},
	"1th": {"1 Thessalonians", 52}, "2th": {"2 Thessalonians", 53}, "1ti": {"1 Timothy", 54}, "2ti": {"2 Timothy", 55},
	"tit": {"Titus", 56}, "phm": {"Philemon", 57}, "heb": {"Hebrews", 58}, "jas": {"James", 59},
	"1pe": {"1 Peter", 60}, "2pe": {"2 Peter", 61}, "1jn": {"1 John", 62}, "2jn": {"2 John", 63},
	"3jn": {"3 John", 64}, "jud": {"Jude", 65}, "rev": {"Revelation", 66},
}

// BookTitle returns the canonical title for a lower-case book id, or the
// id itself (title-cased is not attempted) if unknown.
func BookTitle(id string) string {
	if e, ok := bookTable[id]; ok {
		return e.Title
	}
	return id
}

// BookNumber returns the 1-66 canonical number for a lower-case book id,
// or 0 if unknown.
func BookNumber(id string) int {
	if e, ok := bookTable[id]; ok {
		return e.Number
	}
	return 0
}

// IsNewTestament reports whether id's canonical number is 40 or higher.
func IsNewTestament(id string) bool {
	return BookNumber(id) >= 40
}
