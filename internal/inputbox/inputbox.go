// Package inputbox implements the single-line quick input box drawn
// with tcell.
//
// The box owns its text buffer and cursor and translates terminal
// events into the host's lifecycle notifications. It never decides
// what submitted text means; the Sink does.
package inputbox

import (
	"sync"

	"github.com/gdamore/tcell/v2"
)

// Sink receives input box notifications. The host wires these to
// plugin callback positions.
type Sink interface {
	// BoxShown fires when the box becomes visible.
	BoxShown()
	// BoxHidden fires when the box is dismissed, whatever the reason.
	BoxHidden()
	// Pasted fires after a bracketed paste lands in the buffer.
	Pasted(text string)
	// TextChanged fires after any edit to the buffer.
	TextChanged(text string)
	// EnterPressed fires with the buffer content on submit.
	EnterPressed(text string)
	// EscapePressed fires on cancel.
	EscapePressed()
	// FocusGained and FocusLost track terminal focus reporting.
	FocusGained()
	FocusLost()
}

// Box is the quick input line.
type Box struct {
	mu sync.Mutex

	screen tcell.Screen
	sink   Sink

	text    []rune
	cursor  int
	visible bool
	focused bool

	// pasting buffers rune events between bracketed paste markers.
	pasting    bool
	pasteBuf   []rune
	promptText string

	style       tcell.Style
	promptStyle tcell.Style
}

// New creates a box on the given screen. The screen must already be
// initialized.
func New(screen tcell.Screen, sink Sink) *Box {
	return &Box{
		screen:      screen,
		sink:        sink,
		promptText:  "> ",
		style:       tcell.StyleDefault,
		promptStyle: tcell.StyleDefault.Bold(true),
	}
}

// Show makes the box visible with an empty buffer.
func (b *Box) Show() {
	b.mu.Lock()
	if b.visible {
		b.mu.Unlock()
		return
	}
	b.visible = true
	b.text = nil
	b.cursor = 0
	b.mu.Unlock()

	b.sink.BoxShown()
	b.Draw()
}

// Hide dismisses the box.
func (b *Box) Hide() {
	b.mu.Lock()
	if !b.visible {
		b.mu.Unlock()
		return
	}
	b.visible = false
	b.mu.Unlock()

	b.sink.BoxHidden()
}

// Visible reports whether the box is shown.
func (b *Box) Visible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// Text returns the current buffer content.
func (b *Box) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.text)
}

// SetText replaces the buffer content and moves the cursor to the end.
func (b *Box) SetText(text string) {
	b.mu.Lock()
	b.text = []rune(text)
	b.cursor = len(b.text)
	b.mu.Unlock()

	b.sink.TextChanged(text)
	b.Draw()
}

// HandleEvent processes one terminal event. Returns true when the
// event was consumed.
func (b *Box) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return b.handleKey(ev)
	case *tcell.EventPaste:
		b.handlePaste(ev)
		return true
	case *tcell.EventFocus:
		b.handleFocus(ev)
		return true
	case *tcell.EventResize:
		b.Draw()
		return true
	}
	return false
}

func (b *Box) handleKey(ev *tcell.EventKey) bool {
	b.mu.Lock()
	if !b.visible {
		b.mu.Unlock()
		return false
	}

	// During a bracketed paste tcell delivers content as rune events.
	if b.pasting {
		if ev.Key() == tcell.KeyRune {
			b.pasteBuf = append(b.pasteBuf, ev.Rune())
		} else if ev.Key() == tcell.KeyEnter {
			b.pasteBuf = append(b.pasteBuf, '\n')
		}
		b.mu.Unlock()
		return true
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		text := string(b.text)
		b.mu.Unlock()
		b.sink.EnterPressed(text)
		return true

	case tcell.KeyEscape:
		b.mu.Unlock()
		b.sink.EscapePressed()
		return true

	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if b.cursor > 0 {
			b.text = append(b.text[:b.cursor-1], b.text[b.cursor:]...)
			b.cursor--
			b.notifyChangedLocked()
			return true
		}
		b.mu.Unlock()
		return true

	case tcell.KeyDelete:
		if b.cursor < len(b.text) {
			b.text = append(b.text[:b.cursor], b.text[b.cursor+1:]...)
			b.notifyChangedLocked()
			return true
		}
		b.mu.Unlock()
		return true

	case tcell.KeyLeft:
		if b.cursor > 0 {
			b.cursor--
		}
		b.mu.Unlock()
		b.Draw()
		return true

	case tcell.KeyRight:
		if b.cursor < len(b.text) {
			b.cursor++
		}
		b.mu.Unlock()
		b.Draw()
		return true

	case tcell.KeyHome, tcell.KeyCtrlA:
		b.cursor = 0
		b.mu.Unlock()
		b.Draw()
		return true

	case tcell.KeyEnd, tcell.KeyCtrlE:
		b.cursor = len(b.text)
		b.mu.Unlock()
		b.Draw()
		return true

	case tcell.KeyCtrlU:
		if len(b.text) > 0 {
			b.text = nil
			b.cursor = 0
			b.notifyChangedLocked()
			return true
		}
		b.mu.Unlock()
		return true

	case tcell.KeyRune:
		b.text = append(b.text[:b.cursor], append([]rune{ev.Rune()}, b.text[b.cursor:]...)...)
		b.cursor++
		b.notifyChangedLocked()
		return true
	}

	b.mu.Unlock()
	return false
}

// notifyChangedLocked fires TextChanged and redraws. The caller holds
// the lock; it is released here.
func (b *Box) notifyChangedLocked() {
	text := string(b.text)
	b.mu.Unlock()

	b.sink.TextChanged(text)
	b.Draw()
}

func (b *Box) handlePaste(ev *tcell.EventPaste) {
	b.mu.Lock()
	if !b.visible {
		b.mu.Unlock()
		return
	}

	if ev.Start() {
		b.pasting = true
		b.pasteBuf = nil
		b.mu.Unlock()
		return
	}

	// Paste end: insert the buffered content at the cursor.
	b.pasting = false
	pasted := string(b.pasteBuf)
	b.pasteBuf = nil
	if pasted == "" {
		b.mu.Unlock()
		return
	}
	runes := []rune(pasted)
	b.text = append(b.text[:b.cursor], append(runes, b.text[b.cursor:]...)...)
	b.cursor += len(runes)
	text := string(b.text)
	b.mu.Unlock()

	b.sink.Pasted(pasted)
	b.sink.TextChanged(text)
	b.Draw()
}

func (b *Box) handleFocus(ev *tcell.EventFocus) {
	b.mu.Lock()
	was := b.focused
	b.focused = ev.Focused
	b.mu.Unlock()

	if ev.Focused == was {
		return
	}
	if ev.Focused {
		b.sink.FocusGained()
	} else {
		b.sink.FocusLost()
	}
}

// Draw renders the box on the bottom row of the screen.
func (b *Box) Draw() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.screen == nil {
		return
	}
	width, height := b.screen.Size()
	if width == 0 || height == 0 {
		return
	}
	row := height - 1

	if !b.visible {
		for x := 0; x < width; x++ {
			b.screen.SetContent(x, row, ' ', nil, tcell.StyleDefault)
		}
		b.screen.HideCursor()
		b.screen.Show()
		return
	}

	x := 0
	for _, r := range b.promptText {
		if x >= width {
			break
		}
		b.screen.SetContent(x, row, r, nil, b.promptStyle)
		x++
	}
	textStart := x
	for _, r := range b.text {
		if x >= width {
			break
		}
		b.screen.SetContent(x, row, r, nil, b.style)
		x++
	}
	for ; x < width; x++ {
		b.screen.SetContent(x, row, ' ', nil, b.style)
	}

	cx := textStart + b.cursor
	if cx >= width {
		cx = width - 1
	}
	b.screen.ShowCursor(cx, row)
	b.screen.Show()
}
