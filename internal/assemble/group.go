package assemble

import (
	"sort"

	"github.com/scriptoria/weaver/internal/model"
)

// group is one outer-order render unit: every Resource that must be laid
// out together (scripture side-by-side, helps flowing below) because
// spec.md §4.7's outer-order rule placed them in the same bucket.
type group struct {
	bookID     string
	bookTitle  string
	bookNumber int
	resources  []*model.Resource
}

// groupResources orders resources into the outer-order sequence spec.md
// §4.7 defines. The relative order of resources.resources is always the
// caller's request order — grouping only decides which resources share a
// render unit and in what sequence the units themselves appear.
func groupResources(resources []*model.Resource, strategy model.AssemblyStrategy) []group {
	switch strategy {
	case model.BookLanguageOrder:
		return groupByBookThenLanguage(resources)
	default: // model.LanguageBookOrder
		return groupByLanguageThenBook(resources)
	}
}

// groupByBookThenLanguage buckets by book number first — so the same book
// requested in two languages becomes ONE group (enabling the two-column
// side-by-side layout) — ordered ascending by book number; within a
// bucket, resources keep their original request order, which is the
// request's own lang_code order.
func groupByBookThenLanguage(resources []*model.Resource) []group {
	numbers := distinctBookNumbers(resources)
	groups := make([]group, 0, len(numbers))
	for _, num := range numbers {
		var members []*model.Resource
		for _, r := range resources {
			if r.BookNumber == num {
				members = append(members, r)
			}
		}
		groups = append(groups, group{
			bookID:     members[0].BookID,
			bookTitle:  members[0].BookTitle,
			bookNumber: num,
			resources:  members,
		})
	}
	return groups
}

// groupByLanguageThenBook buckets by lang_code first, in the order each
// lang_code first appears in the request; within a lang, by ascending book
// number. The same book in two languages lands in two different groups
// here, since the languages never share a bucket.
func groupByLanguageThenBook(resources []*model.Resource) []group {
	langs := distinctLangCodesInOrder(resources)
	var groups []group
	for _, lang := range langs {
		var inLang []*model.Resource
		for _, r := range resources {
			if r.Request.LangCode == lang {
				inLang = append(inLang, r)
			}
		}
		for _, num := range distinctBookNumbers(inLang) {
			var members []*model.Resource
			for _, r := range inLang {
				if r.BookNumber == num {
					members = append(members, r)
				}
			}
			groups = append(groups, group{
				bookID:     members[0].BookID,
				bookTitle:  members[0].BookTitle,
				bookNumber: num,
				resources:  members,
			})
		}
	}
	return groups
}

func distinctBookNumbers(resources []*model.Resource) []int {
	seen := map[int]bool{}
	var nums []int
	for _, r := range resources {
		if !seen[r.BookNumber] {
			seen[r.BookNumber] = true
			nums = append(nums, r.BookNumber)
		}
	}
	sort.Ints(nums)
	return nums
}

func distinctLangCodesInOrder(resources []*model.Resource) []string {
	seen := map[string]bool{}
	var langs []string
	for _, r := range resources {
		if !seen[r.Request.LangCode] {
			seen[r.Request.LangCode] = true
			langs = append(langs, r.Request.LangCode)
		}
	}
	return langs
}

// scriptureResources returns g's members that carry a parsed ScriptureTree,
// in group order.
func (g group) scriptureResources() []*model.Resource {
	var out []*model.Resource
	for _, r := range g.resources {
		if r.Kind == model.KindScripture && r.Scripture != nil {
			out = append(out, r)
		}
	}
	return out
}

// unionChapterNumbers returns every chapter number present in any member's
// scripture tree or helps tree, ascending.
func (g group) unionChapterNumbers() []int {
	seen := map[int]bool{}
	for _, r := range g.resources {
		if r.Scripture != nil {
			for _, ch := range r.Scripture.SortedChapterNumbers() {
				seen[ch] = true
			}
		}
		if r.Helps != nil {
			for _, ch := range r.Helps.SortedChapterNumbers() {
				seen[ch] = true
			}
		}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// unionFirstVerses returns every firstVerse boundary present in any
// member's scripture tree for chapter ch, ascending — spec.md §4.7's VERSE
// granularity explicitly unions only the scripture trees, not the helps.
func (g group) unionFirstVerses(ch int) []int {
	seen := map[int]bool{}
	for _, r := range g.scriptureResources() {
		block, ok := r.Scripture.Chapters[ch]
		if !ok {
			continue
		}
		for _, fv := range block.SortedFirstVerses() {
			seen[fv] = true
		}
	}
	nums := make([]int, 0, len(seen))
	for n := range seen {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}
