package viewdb

import (
	"context"
	"strings"

	"github.com/autom8ter/viewdb/errors"
	"github.com/xeipuuv/gojsonschema"
)

// collectionSchema validates the objects written to one collection
type collectionSchema struct {
	collection string
	raw        string
	schema     *gojsonschema.Schema
}

func newCollectionSchema(collection, jsonSchema string) (*collectionSchema, error) {
	loaded, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(jsonSchema))
	if err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "collection %s: invalid json schema", collection)
	}
	return &collectionSchema{
		collection: collection,
		raw:        jsonSchema,
		schema:     loaded,
	}, nil
}

// validate validates the document against the collection's json schema
func (c *collectionSchema) validate(doc *Document) error {
	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(doc.Bytes()))
	if err != nil {
		return errors.Wrap(err, errors.Validation, "collection %s: failed to validate object", c.collection)
	}
	if !result.Valid() {
		var errs []string
		for _, err := range result.Errors() {
			errs = append(errs, err.String())
		}
		return errors.New(errors.Validation, "collection %s: %s", c.collection, strings.Join(errs, ","))
	}
	return nil
}

// SetSchema sets the json schema every object written to the collection must satisfy. An empty schema removes it.
func (d *Database) SetSchema(ctx context.Context, collection, jsonSchema string) error {
	if jsonSchema == "" {
		d.schemas.Del(collection)
		return nil
	}
	schema, err := newCollectionSchema(collection, jsonSchema)
	if err != nil {
		return err
	}
	d.schemas.Set(collection, schema)
	d.logger.Info(ctx, "set collection schema", map[string]any{
		"collection": collection,
	})
	return nil
}

// Schema returns the json schema of the collection, if any
func (d *Database) Schema(collection string) (string, bool) {
	schema := d.schemas.Get(collection)
	if schema == nil {
		return "", false
	}
	return schema.raw, true
}

func (d *Database) validateObject(ctx context.Context, collection string, object *Document) error {
	schema := d.schemas.Get(collection)
	if schema == nil {
		return nil
	}
	return schema.validate(object)
}
