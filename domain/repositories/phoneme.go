package repositories

import "github.com/satriahrh/lafal/domain/entities"

// PhonemeDictionary maps a word to its known pronunciations in dictionary order.
// Unknown words yield an empty slice.
type PhonemeDictionary interface {
	Lookup(word string) []entities.PhonemeSequence
}
