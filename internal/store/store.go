// Package store implements the structured store (C9): persisting a
// schema-classified subset of extracted metadata as typed rows in a
// relational database via xorm.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"xorm.io/xorm"

	"github.com/conneroisu/metaforge/internal/errors"
	"github.com/conneroisu/metaforge/internal/types"
)

// Category is a display grouping for structured fields ("Camera", "GPS").
type Category struct {
	ID          int64  `xorm:"pk autoincr"`
	Name        string `xorm:"unique notnull"`
	DisplayName string
}

// Field is one column of the structured schema, mapping an extractor key
// to a typed, categorized, optionally editable/searchable column.
type Field struct {
	ID            int64  `xorm:"pk autoincr"`
	Key           string `xorm:"unique notnull index"`
	Name          string
	CategoryID    int64 `xorm:"index"`
	DataType      string
	IsEditable    bool
	IsSearchable  bool
	DisplayFormat string
}

// Value is one stored (path, field) observation.
type Value struct {
	ID      int64  `xorm:"pk autoincr"`
	Path    string `xorm:"index notnull"`
	FieldID int64  `xorm:"index notnull"`
	Text    string
}

var numberRe = regexp.MustCompile(`\d+(\.\d+)?`)

// Store is the structured store's database access layer. Safe for
// concurrent use: xorm's Engine manages its own connection pool, and the
// local field/category cache is guarded by a mutex.
type Store struct {
	engine *xorm.Engine

	mu         sync.RWMutex
	fieldCache map[string]Field
}

// Open creates a Store backed by driver/dsn (e.g. "sqlite3", path) and
// ensures the schema exists.
func Open(driver, dsn string) (*Store, error) {
	engine, err := xorm.NewEngine(driver, dsn)
	if err != nil {
		return nil, errors.WrapStore(err, errors.ErrCodeInternalError, "open structured store engine")
	}
	if err := engine.Sync2(new(Category), new(Field), new(Value)); err != nil {
		return nil, errors.WrapStore(err, errors.ErrCodeInternalError, "sync structured store schema")
	}

	s := &Store{engine: engine, fieldCache: make(map[string]Field)}
	if err := s.reloadFieldCache(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.engine.Close()
}

func (s *Store) reloadFieldCache() error {
	var fields []Field
	if err := s.engine.Find(&fields); err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "load field schema")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldCache = make(map[string]Field, len(fields))
	for _, f := range fields {
		s.fieldCache[f.Key] = f
	}
	return nil
}

func (s *Store) fieldByKey(key string) (Field, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fieldCache[key]
	return f, ok
}

// ProcessAndStoreMetadata writes every key in raw that is defined in the
// field schema and non-empty, formatted per the field's data type, as a
// single batched insert keyed by path+field.
func (s *Store) ProcessAndStoreMetadata(ctx context.Context, path types.Path, raw types.MetadataValues) error {
	var rows []Value
	for key, value := range raw {
		field, ok := s.fieldByKey(key)
		if !ok || value.Value == "" {
			continue
		}
		rows = append(rows, Value{Path: string(path), FieldID: field.ID, Text: formatValue(field.DataType, value.Value)})
	}
	if len(rows) == 0 {
		return nil
	}

	session := s.engine.Context(ctx)
	if _, err := session.Where("path = ?", string(path)).Delete(new(Value)); err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "clear previous structured rows")
	}
	if _, err := session.Insert(&rows); err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "batch insert structured rows")
	}
	return nil
}

// GetStructuredMetadata returns every stored field value for path, grouped
// by category display name.
func (s *Store) GetStructuredMetadata(ctx context.Context, path types.Path) (map[string][]types.FieldValue, error) {
	var rows []Value
	if err := s.engine.Context(ctx).Where("path = ?", string(path)).Find(&rows); err != nil {
		return nil, errors.WrapStore(err, errors.ErrCodeInternalError, "query structured rows")
	}

	var categories []Category
	if err := s.engine.Find(&categories); err != nil {
		return nil, errors.WrapStore(err, errors.ErrCodeInternalError, "load categories")
	}
	categoryName := make(map[int64]string, len(categories))
	for _, c := range categories {
		categoryName[c.ID] = c.DisplayName
	}

	fieldByID := make(map[int64]Field)
	s.mu.RLock()
	for _, f := range s.fieldCache {
		fieldByID[f.ID] = f
	}
	s.mu.RUnlock()

	grouped := make(map[string][]types.FieldValue)
	for _, row := range rows {
		field, ok := fieldByID[row.FieldID]
		if !ok {
			continue
		}
		catName := categoryName[field.CategoryID]
		grouped[catName] = append(grouped[catName], types.FieldValue{
			Field: types.StructuredField{
				Key: field.Key, Name: field.Name, Category: catName, DataType: field.DataType,
				IsEditable: field.IsEditable, IsSearchable: field.IsSearchable, DisplayFormat: field.DisplayFormat,
			},
			Value: row.Text,
		})
	}
	return grouped, nil
}

// UpdateFieldValue writes a single field value for path, rejecting edits on
// fields not marked editable.
func (s *Store) UpdateFieldValue(ctx context.Context, path types.Path, fieldKey, newValue string) error {
	field, ok := s.fieldByKey(fieldKey)
	if !ok {
		return errors.NewStoreError(errors.ErrCodeSchemaMiss, "no field defined for key "+fieldKey, nil)
	}
	if !field.IsEditable {
		return errors.NewStoreError(errors.ErrCodeFieldNotEditable, "field "+fieldKey+" is not editable", nil)
	}

	formatted := formatValue(field.DataType, newValue)
	session := s.engine.Context(ctx)
	affected, err := session.Where("path = ? AND field_id = ?", string(path), field.ID).Cols("text").Update(&Value{Text: formatted})
	if err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "update structured value")
	}
	if affected == 0 {
		if _, err := session.Insert(&Value{Path: string(path), FieldID: field.ID, Text: formatted}); err != nil {
			return errors.WrapStore(err, errors.ErrCodeInternalError, "insert structured value")
		}
	}
	return nil
}

// AddCustomField creates a new field definition under categoryName,
// creating the category if needed, and invalidates the local field cache.
func (s *Store) AddCustomField(ctx context.Context, key, name, categoryName, dataType string, editable, searchable bool) error {
	session := s.engine.Context(ctx)

	var category Category
	found, err := session.Where("name = ?", categoryName).Get(&category)
	if err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "lookup category")
	}
	if !found {
		category = Category{Name: categoryName, DisplayName: categoryName}
		if _, err := session.Insert(&category); err != nil {
			return errors.WrapStore(err, errors.ErrCodeInternalError, "create category")
		}
	}

	field := Field{Key: key, Name: name, CategoryID: category.ID, DataType: dataType, IsEditable: editable, IsSearchable: searchable}
	if _, err := session.Insert(&field); err != nil {
		return errors.WrapStore(err, errors.ErrCodeInternalError, "create field")
	}

	return s.reloadFieldCache()
}

// formatValue applies the spec's per-data-type formatting rules.
func formatValue(dataType, value string) string {
	switch dataType {
	case "number":
		if match := numberRe.FindString(value); match != "" {
			return match
		}
		return value
	case "coordinate":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return strconv.FormatFloat(f, 'f', 6, 64)
		}
		return value
	default: // size, datetime, duration, text
		return fmt.Sprint(value)
	}
}
