package rooms

import (
	"sort"

	"go.uber.org/zap"
)

// AddAnnotation appends an annotation to a line and assigns it the next id of
// the file. Ids are never reused while the file exists.
func (r *Registry) AddAnnotation(roomID RoomID, name FileName, line int, text, author string) (Annotation, error) {
	if line < 1 {
		return Annotation{}, ErrInvalidLineNumber
	}
	target, err := r.acquire(roomID)
	if err != nil {
		return Annotation{}, err
	}
	defer target.mu.Unlock()

	if _, ok := target.files[name]; !ok {
		return Annotation{}, ErrFileNotFound
	}
	target.nextAnnotationID[name]++
	annotation := Annotation{
		ID:        target.nextAnnotationID[name],
		Text:      text,
		Author:    author,
		Timestamp: r.clock().UTC(),
	}
	if target.annotations[name] == nil {
		target.annotations[name] = make(map[int][]Annotation)
	}
	target.annotations[name][line] = append(target.annotations[name][line], annotation)

	r.logger.Debug("annotation added",
		zap.String("room_id", roomID.String()),
		zap.String("file_name", name.String()),
		zap.Int("line", line),
		zap.Int64("annotation_id", annotation.ID))
	return annotation, nil
}

// DeleteAnnotation removes the annotation with the given id from a line.
// Only its author may delete it. Empty line and file entries are dropped.
func (r *Registry) DeleteAnnotation(roomID RoomID, name FileName, line int, id int64, author string) (Annotation, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return Annotation{}, err
	}
	defer target.mu.Unlock()

	entries := target.annotations[name][line]
	for index, candidate := range entries {
		if candidate.ID != id {
			continue
		}
		if candidate.Author != author {
			return Annotation{}, ErrNotAnnotationAuthor
		}
		remaining := append(entries[:index:index], entries[index+1:]...)
		if len(remaining) == 0 {
			delete(target.annotations[name], line)
		} else {
			target.annotations[name][line] = remaining
		}
		if len(target.annotations[name]) == 0 {
			delete(target.annotations, name)
		}
		return candidate, nil
	}
	return Annotation{}, ErrAnnotationNotFound
}

// UpdateAnnotation replaces the text of the annotation with the given id.
// Only its author may change it; id and timestamp are kept.
func (r *Registry) UpdateAnnotation(roomID RoomID, name FileName, line int, id int64, text, author string) (Annotation, error) {
	target, err := r.acquire(roomID)
	if err != nil {
		return Annotation{}, err
	}
	defer target.mu.Unlock()

	entries := target.annotations[name][line]
	for index, candidate := range entries {
		if candidate.ID != id {
			continue
		}
		if candidate.Author != author {
			return Annotation{}, ErrNotAnnotationAuthor
		}
		candidate.Text = text
		entries[index] = candidate
		return candidate, nil
	}
	return Annotation{}, ErrAnnotationNotFound
}

// SetBreakpoints replaces the file's breakpoint list wholesale. An empty list
// clears it.
func (r *Registry) SetBreakpoints(roomID RoomID, name FileName, lines []int) error {
	for _, line := range lines {
		if line < 1 {
			return ErrInvalidLineNumber
		}
	}
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()

	if _, ok := target.files[name]; !ok {
		return ErrFileNotFound
	}
	if len(lines) == 0 {
		delete(target.breakpoints, name)
		return nil
	}
	target.breakpoints[name] = append([]int(nil), lines...)
	return nil
}

// RemoveBreakpoints clears the whole breakpoint set of a file. It reports
// ErrNoBreakpoints when the file had none.
func (r *Registry) RemoveBreakpoints(roomID RoomID, name FileName) error {
	target, err := r.acquire(roomID)
	if err != nil {
		return err
	}
	defer target.mu.Unlock()
	if _, ok := target.files[name]; !ok {
		return ErrFileNotFound
	}
	if _, ok := target.breakpoints[name]; !ok {
		return ErrNoBreakpoints
	}
	delete(target.breakpoints, name)
	return nil
}

func (rm *room) copyAnnotations() map[FileName]map[int][]Annotation {
	result := make(map[FileName]map[int][]Annotation, len(rm.annotations))
	for name, lines := range rm.annotations {
		copiedLines := make(map[int][]Annotation, len(lines))
		for line, entries := range lines {
			copiedLines[line] = append([]Annotation(nil), entries...)
		}
		result[name] = copiedLines
	}
	return result
}

func (rm *room) copyBreakpoints() map[FileName][]int {
	result := make(map[FileName][]int, len(rm.breakpoints))
	for name, lines := range rm.breakpoints {
		copied := append([]int(nil), lines...)
		sort.Ints(copied)
		result[name] = copied
	}
	return result
}
