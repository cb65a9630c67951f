package rooms

import "strings"

// AddTerminal registers a terminal record. An empty shell falls back to the
// registry default. Re-adding an existing id resets it.
func (r *Registry) AddTerminal(roomID RoomID, id TerminalID, shell string) (Terminal, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return Terminal{}, err
	}
	defer target.mu.Unlock()

	shell = strings.TrimSpace(shell)
	if shell == "" {
		shell = r.defaultShell
	}
	if _, exists := target.terminals[id]; !exists {
		target.terminalOrder = append(target.terminalOrder, id)
	}
	created := &Terminal{
		ID:        id,
		Shell:     shell,
		History:   []string{},
		CreatedAt: r.clock().UTC(),
	}
	target.terminals[id] = created
	return copyTerminal(created), nil
}

func (r *Registry) RemoveTerminal(roomID RoomID, id TerminalID) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	if _, ok := target.terminals[id]; !ok {
		return ErrTerminalNotFound
	}
	delete(target.terminals, id)
	for index, candidate := range target.terminalOrder {
		if candidate == id {
			target.terminalOrder = append(target.terminalOrder[:index:index], target.terminalOrder[index+1:]...)
			break
		}
	}
	return nil
}

// UpdateTerminalHistory replaces the terminal's scrollback.
func (r *Registry) UpdateTerminalHistory(roomID RoomID, id TerminalID, history []string) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	existing, ok := target.terminals[id]
	if !ok {
		return ErrTerminalNotFound
	}
	existing.History = append([]string{}, history...)
	return nil
}

func (r *Registry) SetTerminalShell(roomID RoomID, id TerminalID, shell string) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	existing, ok := target.terminals[id]
	if !ok {
		return ErrTerminalNotFound
	}
	shell = strings.TrimSpace(shell)
	if shell == "" {
		shell = r.defaultShell
	}
	existing.Shell = shell
	return nil
}

func (rm *room) copyTerminals() []Terminal {
	result := make([]Terminal, 0, len(rm.terminalOrder))
	for _, id := range rm.terminalOrder {
		result = append(result, copyTerminal(rm.terminals[id]))
	}
	return result
}

func copyTerminal(source *Terminal) Terminal {
	copied := *source
	copied.History = append([]string{}, source.History...)
	return copied
}
