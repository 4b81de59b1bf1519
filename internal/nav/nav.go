// Package nav is the per-user navigation engine over the catalog tree.
//
// Button addressing is index-based because Telegram callback payloads are
// capped at 64 bytes. An index is only meaningful on the screen that
// rendered it, so every action re-derives the authoritative list from the
// session and the current catalog before any index is used.
package nav

import (
	"fmt"
	"strconv"

	"studybot/internal/catalog"
	"studybot/pkg/tgui"
)

// Callback namespace and actions.
const (
	NS = "n"

	actRoot   = "root"
	actSelect = "s"
	actBack   = "b"
	actLeaf   = "l"
)

type ActionKind int

const (
	ActionOpenRoot ActionKind = iota
	ActionSelect
	ActionBack
	ActionLeaf
)

type Action struct {
	Kind  ActionKind
	Level Level
	Index int
}

func OpenRoot() Action                      { return Action{Kind: ActionOpenRoot} }
func SelectIndex(level Level, i int) Action { return Action{Kind: ActionSelect, Level: level, Index: i} }
func GoBack(level Level) Action             { return Action{Kind: ActionBack, Level: level} }
func SelectLeaf(i int) Action               { return Action{Kind: ActionLeaf, Index: i} }

// RootData is the packed callback payload that opens the catalog root.
// Entry-point keyboards outside this package use it for their browse button.
func RootData() string { return tgui.Pack(NS, actRoot) }

// ParseCallback decodes packed callback data into an Action.
// Malformed or foreign data yields ok=false.
func ParseCallback(data string) (Action, bool) {
	ns, act, args, ok := tgui.Unpack(data)
	if !ok || ns != NS {
		return Action{}, false
	}
	switch act {
	case actRoot:
		return OpenRoot(), true
	case actSelect:
		if len(args) != 2 {
			return Action{}, false
		}
		level, err1 := strconv.Atoi(args[0])
		idx, err2 := strconv.Atoi(args[1])
		if err1 != nil || err2 != nil {
			return Action{}, false
		}
		return SelectIndex(Level(level), idx), true
	case actBack:
		if len(args) != 1 {
			return Action{}, false
		}
		level, err := strconv.Atoi(args[0])
		if err != nil {
			return Action{}, false
		}
		return GoBack(Level(level)), true
	case actLeaf:
		if len(args) != 1 {
			return Action{}, false
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			return Action{}, false
		}
		return SelectLeaf(idx), true
	default:
		return Action{}, false
	}
}

type Button struct {
	Label string
	Data  string // callback data (empty for URL buttons)
	URL   string
}

// Screen is a transport-agnostic render of one menu.
// Item is non-nil when the action resolved a content-reference leaf; the
// caller delivers the referenced content instead of editing the menu.
type Screen struct {
	Text string
	Rows [][]Button
	Item *catalog.Item
}

type Engine struct {
	cat   *catalog.Holder
	store *Store
}

func NewEngine(cat *catalog.Holder, store *Store) *Engine {
	return &Engine{cat: cat, store: store}
}

// Navigate applies one action to the user's session and returns the screen
// to display. Invalid or stale actions degrade to a valid screen; Navigate
// never fails on user input alone.
func (e *Engine) Navigate(userID int64, a Action) Screen {
	tree := e.cat.Tree()
	s := e.store.get(userID)

	switch a.Kind {
	case ActionOpenRoot:
		s.clear()
		return e.menuScreen(tree, s, LevelYear)

	case ActionSelect:
		if !a.Level.valid() {
			s.clear()
			return e.menuScreen(tree, s, LevelYear)
		}
		names, ok := e.childrenAt(tree, s, a.Level)
		if !ok {
			// Missing ancestors (stale callback): deepest valid screen.
			return e.deepestScreen(tree, s)
		}
		if a.Index < 0 || a.Index >= len(names) {
			// Index from an outdated screen: re-render the same menu.
			return e.menuScreen(tree, s, a.Level)
		}
		s.set(a.Level, names[a.Index])
		if a.Level == LevelSubject {
			sub, ok := e.subjectOf(tree, s)
			if !ok {
				return e.deepestScreen(tree, s)
			}
			s.items = sub.Items
			s.hasItems = true
			return itemsScreen(sub)
		}
		return e.menuScreen(tree, s, a.Level+1)

	case ActionBack:
		if !a.Level.valid() {
			s.clear()
			return e.menuScreen(tree, s, LevelYear)
		}
		// Drop the selection at the target level and everything deeper.
		s.set(a.Level, "")
		if s.depth() < a.Level {
			// Ancestors gone (replayed stale back): start over.
			s.clear()
			return e.menuScreen(tree, s, LevelYear)
		}
		return e.menuScreen(tree, s, a.Level)

	case ActionLeaf:
		if !s.hasItems {
			return staleScreen()
		}
		if len(s.items) == 0 {
			return emptyScreen(s.path[LevelSubject])
		}
		if a.Index < 0 || a.Index >= len(s.items) {
			return staleScreen()
		}
		item := s.items[a.Index]
		return Screen{Item: &item}

	default:
		s.clear()
		return e.menuScreen(tree, s, LevelYear)
	}
}

// childrenAt lists the option names the menu at the given level offers,
// resolved from the session's selected ancestors. ok is false when an
// ancestor is missing from the session or has vanished from the catalog.
func (e *Engine) childrenAt(tree *catalog.Tree, s *Session, level Level) ([]string, bool) {
	if s.depth() < level {
		return nil, false
	}
	switch level {
	case LevelYear:
		return yearNames(tree), true
	case LevelSpecialization:
		y, ok := tree.Year(s.path[LevelYear])
		if !ok {
			return nil, false
		}
		names := make([]string, len(y.Specializations))
		for i, sp := range y.Specializations {
			names[i] = sp.Name
		}
		return names, true
	case LevelSemester:
		_, sp, ok := e.specOf(tree, s)
		if !ok {
			return nil, false
		}
		names := make([]string, len(sp.Semesters))
		for i, sem := range sp.Semesters {
			names[i] = sem.Name
		}
		return names, true
	case LevelSubject:
		sem, ok := e.semesterOf(tree, s)
		if !ok {
			return nil, false
		}
		names := make([]string, len(sem.Subjects))
		for i, sub := range sem.Subjects {
			names[i] = sub.Name
		}
		return names, true
	default:
		return nil, false
	}
}

func (e *Engine) specOf(tree *catalog.Tree, s *Session) (*catalog.Year, *catalog.Specialization, bool) {
	y, ok := tree.Year(s.path[LevelYear])
	if !ok {
		return nil, nil, false
	}
	sp, ok := y.Specialization(s.path[LevelSpecialization])
	if !ok {
		return nil, nil, false
	}
	return y, sp, true
}

func (e *Engine) semesterOf(tree *catalog.Tree, s *Session) (*catalog.Semester, bool) {
	_, sp, ok := e.specOf(tree, s)
	if !ok {
		return nil, false
	}
	return sp.Semester(s.path[LevelSemester])
}

func (e *Engine) subjectOf(tree *catalog.Tree, s *Session) (*catalog.Subject, bool) {
	sem, ok := e.semesterOf(tree, s)
	if !ok {
		return nil, false
	}
	return sem.Subject(s.path[LevelSubject])
}

// deepestScreen renders the deepest menu the session can still support,
// trimming selections the current catalog no longer knows.
func (e *Engine) deepestScreen(tree *catalog.Tree, s *Session) Screen {
	for level := s.depth(); level > LevelYear; level-- {
		if _, ok := e.childrenAt(tree, s, level); ok {
			return e.menuScreen(tree, s, level)
		}
		s.set(level-1, "")
	}
	s.clear()
	return e.menuScreen(tree, s, LevelYear)
}

func (e *Engine) menuScreen(tree *catalog.Tree, s *Session, level Level) Screen {
	names, ok := e.childrenAt(tree, s, level)
	if !ok {
		s.clear()
		level = LevelYear
		names = yearNames(tree)
	}

	rows := make([][]Button, 0, len(names)+1)
	for i, name := range names {
		rows = append(rows, []Button{{
			Label: name,
			Data:  tgui.Pack(NS, actSelect, strconv.Itoa(int(level)), strconv.Itoa(i)),
		}})
	}
	rows = append(rows, navRow(level))
	return Screen{Text: menuTitle(level), Rows: rows}
}

func itemsScreen(sub *catalog.Subject) Screen {
	if len(sub.Items) == 0 {
		return emptyScreen(sub.Name)
	}
	rows := make([][]Button, 0, len(sub.Items)+1)
	for i, it := range sub.Items {
		btn := Button{Label: it.Title}
		if it.URL != "" {
			btn.URL = it.URL
		} else {
			btn.Data = tgui.Pack(NS, actLeaf, strconv.Itoa(i))
		}
		rows = append(rows, []Button{btn})
	}
	rows = append(rows, []Button{backButton(LevelSubject), homeButton()})
	return Screen{Text: fmt.Sprintf(textPickItem, sub.Name), Rows: rows}
}

func emptyScreen(subject string) Screen {
	return Screen{
		Text: fmt.Sprintf(textEmptySection, subject),
		Rows: [][]Button{{backButton(LevelSubject), homeButton()}},
	}
}

func staleScreen() Screen {
	return Screen{
		Text: textStaleScreen,
		Rows: [][]Button{{homeButton()}},
	}
}

// navRow builds the back/home controls for a menu at the given level.
func navRow(level Level) []Button {
	if level == LevelYear {
		return []Button{homeButton()}
	}
	return []Button{backButton(level - 1), homeButton()}
}

func backButton(level Level) Button {
	return Button{Label: labelBack, Data: tgui.Pack(NS, actBack, strconv.Itoa(int(level)))}
}

func homeButton() Button {
	return Button{Label: labelHome, Data: tgui.Pack(NS, actRoot)}
}

func menuTitle(level Level) string {
	switch level {
	case LevelYear:
		return textPickYear
	case LevelSpecialization:
		return textPickSpecialization
	case LevelSemester:
		return textPickSemester
	case LevelSubject:
		return textPickSubject
	default:
		return textPickYear
	}
}

func yearNames(tree *catalog.Tree) []string {
	names := make([]string, len(tree.Years))
	for i, y := range tree.Years {
		names[i] = y.Name
	}
	return names
}
