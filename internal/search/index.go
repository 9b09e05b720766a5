// Package search builds the client-side full-text index for exported sites.
// The serialized form is compatible with elasticlunr.js, so the bundled
// search UI can load it without a runtime indexing pass.
package search

import (
	"encoding/json"
	"math"
	"strconv"
)

const elasticlunrVersion = "0.9.5"

// termFreq is the per-document term frequency stored at a trie node.
type termFreq struct {
	TF float64 `json:"tf"`
}

// trieNode is one character of the inverted index trie. Children are
// serialized as siblings of docs/df, which is what elasticlunr expects.
type trieNode struct {
	docs     map[string]termFreq
	df       int64
	children map[string]*trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{
		docs:     make(map[string]termFreq),
		children: make(map[string]*trieNode),
	}
}

// MarshalJSON flattens children next to the docs/df keys.
func (n *trieNode) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(n.children)+2)
	if len(n.docs) > 0 {
		data["docs"] = n.docs
	}
	if n.df > 0 {
		data["df"] = n.df
	}
	for key, child := range n.children {
		data[key] = child
	}
	return json.Marshal(data)
}

// invertedIndex is a character trie from token to posting list.
type invertedIndex struct {
	root *trieNode
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{root: newTrieNode()}
}

// add records a token occurrence for a document.
func (ii *invertedIndex) add(docRef, token string, freq float64) {
	if token == "" {
		return
	}
	current := ii.root
	for _, ch := range token {
		key := string(ch)
		child, ok := current.children[key]
		if !ok {
			child = newTrieNode()
			current.children[key] = child
		}
		current = child
	}
	if _, exists := current.docs[docRef]; !exists {
		current.df++
	}
	current.docs[docRef] = termFreq{TF: freq}
}

// lookup walks the trie for a token; nil means the token is unknown.
func (ii *invertedIndex) lookup(token string) *trieNode {
	current := ii.root
	for _, ch := range token {
		child, ok := current.children[string(ch)]
		if !ok {
			return nil
		}
		current = child
	}
	return current
}

// docFrequency reports how many documents contain the token.
func (ii *invertedIndex) docFrequency(token string) int64 {
	n := ii.lookup(token)
	if n == nil {
		return 0
	}
	return n.df
}

// documentStore keeps the stored field values and per-field token counts.
type documentStore struct {
	Save    bool                              `json:"save"`
	Docs    map[string]map[string]interface{} `json:"docs"`
	DocInfo map[string]map[string]int         `json:"docInfo"`
	Length  int                               `json:"length"`
}

func newDocumentStore() *documentStore {
	return &documentStore{
		Save:    true,
		Docs:    make(map[string]map[string]interface{}),
		DocInfo: make(map[string]map[string]int),
	}
}

func (ds *documentStore) addDoc(docRef string, doc map[string]interface{}) {
	if _, exists := ds.Docs[docRef]; !exists {
		ds.Length++
	}
	ds.Docs[docRef] = doc
}

func (ds *documentStore) addFieldLength(docRef, field string, length int) {
	if _, exists := ds.DocInfo[docRef]; !exists {
		ds.DocInfo[docRef] = make(map[string]int)
	}
	ds.DocInfo[docRef][field] = length
}

// Index accumulates searchable documents and serializes to the elasticlunr
// on-disk shape.
type Index struct {
	fields []string
	byName map[string]*invertedIndex
	store  *documentStore
	nextID int
}

// NewIndex creates an index over the given fields. The document reference
// field is always "id".
func NewIndex(fields []string) *Index {
	byName := make(map[string]*invertedIndex, len(fields))
	for _, f := range fields {
		byName[f] = newInvertedIndex()
	}
	return &Index{fields: fields, byName: byName, store: newDocumentStore()}
}

// Add indexes one document and returns its assigned id.
func (idx *Index) Add(fields map[string]string) int {
	id := idx.nextID
	idx.nextID++

	docRef := strconv.Itoa(id)
	stored := make(map[string]interface{}, len(fields)+1)
	stored["id"] = docRef
	for k, v := range fields {
		stored[k] = v
	}
	idx.store.addDoc(docRef, stored)

	for _, field := range idx.fields {
		value, ok := fields[field]
		if !ok {
			continue
		}
		tokens := analyze(value)

		unique := make(map[string]int, len(tokens))
		for _, t := range tokens {
			unique[t]++
		}
		idx.store.addFieldLength(docRef, field, len(unique))
		for token, count := range unique {
			idx.byName[field].add(docRef, token, math.Sqrt(float64(count)))
		}
	}
	return id
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	return idx.store.Length
}

// HasToken reports whether a processed token is present in a field's index.
func (idx *Index) HasToken(field, token string) bool {
	ii, ok := idx.byName[field]
	return ok && ii.docFrequency(token) > 0
}

// toMap builds the serializable elasticlunr index object.
func (idx *Index) toMap() map[string]interface{} {
	nested := make(map[string]interface{}, len(idx.byName))
	for name, ii := range idx.byName {
		nested[name] = map[string]interface{}{"root": ii.root}
	}
	return map[string]interface{}{
		"documentStore": idx.store,
		"index":         nested,
		"lang":          "English",
		"pipeline":      []string{"trimmer", "stopWordFilter", "stemmer"},
		"ref":           "id",
		"version":       elasticlunrVersion,
		"fields":        idx.fields,
	}
}
