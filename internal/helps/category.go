package helps

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

// LookupCategoryEntry resolves a translation-words or translation-academy
// category path (e.g. "bible/kt/word") against an already-acquired
// resource directory, per spec.md §4.5: if the exact path is absent, fall
// back by swapping the bible/kt/ <-> bible/other/ prefix.
func LookupCategoryEntry(resourceDir, categoryPath string, kind model.ResourceKind) (*model.HelpEntry, error) {
	path, ok := resolveCategoryFile(resourceDir, categoryPath)
	if !ok {
		return nil, &errs.ParseError{Path: categoryPath, Message: "category path not found, including bible/kt<->bible/other fallback"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ParseError{Path: path, Message: err.Error(), Err: err}
	}
	body := string(data)

	if kind == model.KindAcademy {
		body = composeAcademyEntry(filepath.Dir(path), body)
	}

	title := firstHeaderText(body)
	if title == "" {
		title = filepath.Base(categoryPath)
	}

	return &model.HelpEntry{
		Kind:     kind,
		AnchorID: anchorForCategory(kind, categoryPath),
		Title:    title,
		Body:     shiftHeaders(body, 1, false),
	}, nil
}

func anchorForCategory(kind model.ResourceKind, categoryPath string) string {
	return string(kind) + "-" + strings.ReplaceAll(categoryPath, "/", "-")
}

// resolveCategoryFile tries categoryPath+".md" under resourceDir, then the
// bible/kt/ <-> bible/other/ swapped path.
func resolveCategoryFile(resourceDir, categoryPath string) (string, bool) {
	candidate := filepath.Join(resourceDir, filepath.FromSlash(categoryPath)+".md")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}

	swapped := swapKtOther(categoryPath)
	if swapped == categoryPath {
		return "", false
	}
	candidate = filepath.Join(resourceDir, filepath.FromSlash(swapped)+".md")
	if _, err := os.Stat(candidate); err == nil {
		return candidate, true
	}
	return "", false
}

func swapKtOther(categoryPath string) string {
	switch {
	case strings.Contains(categoryPath, "bible/kt/"):
		return strings.Replace(categoryPath, "bible/kt/", "bible/other/", 1)
	case strings.Contains(categoryPath, "bible/other/"):
		return strings.Replace(categoryPath, "bible/other/", "bible/kt/", 1)
	default:
		return categoryPath
	}
}

// composeAcademyEntry prepends a translation-academy entry's title (from a
// sibling title.md, else the first header line already present in body)
// and question (from a sibling sub-title.md) before the body, per
// spec.md §4.5.
func composeAcademyEntry(dir, body string) string {
	var b strings.Builder

	title := firstHeaderText(body)
	if data, err := os.ReadFile(filepath.Join(dir, "title.md")); err == nil {
		title = strings.TrimSpace(string(data))
	}
	if title != "" {
		b.WriteString("# " + title + "\n\n")
	}

	if data, err := os.ReadFile(filepath.Join(dir, "sub-title.md")); err == nil {
		question := strings.TrimSpace(string(data))
		if question != "" {
			b.WriteString(question + "\n\n")
		}
	}

	b.WriteString(body)
	return b.String()
}
