package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Quit key.Binding
	Back key.Binding

	// Navigation
	Dashboard key.Binding
	Invoices  key.Binding

	// Movement
	Up     key.Binding
	Down   key.Binding
	Select key.Binding

	// Invoice actions
	New         key.Binding
	Confirm     key.Binding
	Post        key.Binding
	Unconfirm   key.Binding
	Recalculate key.Binding
	Check       key.Binding
	Paid        key.Binding
	Delete      key.Binding
	Refresh     key.Binding
}

var DefaultKeyMap = KeyMap{
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Back:        key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back")),
	Dashboard:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "summary")),
	Invoices:    key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "invoices")),
	Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	New:         key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new draft")),
	Confirm:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "confirm")),
	Post:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "post")),
	Unconfirm:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "unconfirm")),
	Recalculate: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "recalculate")),
	Check:       key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "check")),
	Paid:        key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark paid")),
	Delete:      key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete draft")),
	Refresh:     key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("ctrl+r", "refresh")),
}

// helpLine renders the bindings as "key: desc" pairs.
func helpLine(bindings ...key.Binding) string {
	s := " "
	for _, b := range bindings {
		h := b.Help()
		s += " " + h.Key + ": " + h.Desc + " "
	}
	return helpStyle.Render(s)
}
