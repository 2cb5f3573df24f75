package descriptor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/erp/priceimport/internal/domain/catalog"
	"github.com/erp/priceimport/internal/domain/extraction"
	"github.com/erp/priceimport/internal/domain/shared"
	"github.com/go-playground/validator/v10"
)

type mode string

const (
	modeChain  mode = "chain"
	modeMatrix mode = "matrix"
)

// FieldError is one invalid descriptor field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of a descriptor
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid descriptor: " + strings.Join(parts, "; ")
}

// Unwrap lets callers treat validation failures as configuration errors
func (e *ValidationError) Unwrap() error {
	return shared.ErrInvalidConfiguration
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their descriptor keys
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return catalog.ValidateSlug(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("selector", func(fl validator.FieldLevel) bool {
		_, err := extraction.ParseSelector(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks a descriptor whose defaults have been applied. It
// returns a *ValidationError naming every offending field.
func Validate(d *Descriptor) error {
	verr := &ValidationError{}

	if err := validate.Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("descriptor: validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.add(fieldPath(fe), validationMessage(fe))
		}
	}

	checkSources(d, verr)
	checkMaterials(d, verr)
	checkTiers(d.PricingImport.Tiers, verr)

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func checkSources(d *Descriptor, verr *ValidationError) {
	switch mode(d.PricingImport.Mode) {
	case modeMatrix:
		if d.PricingImport.SourceURL == "" {
			verr.add("pricing_import.source_url", "This field is required in matrix mode")
		}
	case modeChain:
		for i, m := range d.Matrix.Materials {
			if m.SourceURL == "" {
				verr.add(fmt.Sprintf("matrix.materials[%d].source_url", i),
					"Set pricing_import.source_url or a per-material source_url")
			}
			if m.ItemSelector == "" {
				verr.add(fmt.Sprintf("matrix.materials[%d].item_selector", i),
					"Set pricing_import.item_selector or a per-material item_selector")
			}
		}
	}
}

func checkMaterials(d *Descriptor, verr *ValidationError) {
	names := make(map[string]int)
	labels := make(map[string]int)
	for i, m := range d.Matrix.Materials {
		if m.Name == "" {
			continue
		}
		if j, dup := names[catalog.NameKey(m.Name)]; dup {
			verr.add(fmt.Sprintf("matrix.materials[%d].name", i), fmt.Sprintf("Duplicates matrix.materials[%d].name", j))
		} else {
			names[catalog.NameKey(m.Name)] = i
		}
		if j, dup := labels[catalog.NameKey(m.SourceLabel)]; dup {
			verr.add(fmt.Sprintf("matrix.materials[%d].source_label", i), fmt.Sprintf("Duplicates matrix.materials[%d].source_label", j))
		} else {
			labels[catalog.NameKey(m.SourceLabel)] = i
		}
	}
	// A variant carries one value per group
	groups := make(map[string]int)
	for i, mod := range d.Matrix.Modifiers {
		key := catalog.NameKey(mod.Group)
		if key == "" {
			continue
		}
		if key == catalog.NameKey(d.Matrix.Format.Group) || key == catalog.NameKey(d.Matrix.MaterialGroup) {
			verr.add(fmt.Sprintf("matrix.modifiers[%d].group", i), "Must differ from the format and material groups")
			continue
		}
		if j, dup := groups[key]; dup {
			verr.add(fmt.Sprintf("matrix.modifiers[%d].group", i), fmt.Sprintf("Duplicates matrix.modifiers[%d].group", j))
			continue
		}
		groups[key] = i
	}
}

// checkTiers mirrors the tier table invariants with field paths attached
func checkTiers(tiers []Tier, verr *ValidationError) {
	var prev *float64
	for i, t := range tiers {
		if t.MaxBase == nil {
			if i != len(tiers)-1 {
				verr.add(fmt.Sprintf("pricing_import.tiers[%d].max_base", i), "Only the last tier may omit max_base")
			}
			continue
		}
		if *t.MaxBase <= 0 {
			continue
		}
		if prev != nil && *t.MaxBase <= *prev {
			verr.add(fmt.Sprintf("pricing_import.tiers[%d].max_base", i),
				fmt.Sprintf("Must be greater than pricing_import.tiers[%d].max_base", i-1))
		}
		prev = t.MaxBase
	}
}

// fieldPath drops the root struct name from the validator namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_if":
		return "This field is required when " + strings.ToLower(strings.Replace(fe.Param(), " ", " is ", 1))
	case "min":
		if fe.Kind() == reflect.Slice {
			return "Must contain at least " + fe.Param() + " entries"
		}
		return "Must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return "Must be at most " + fe.Param() + " characters"
		}
		return "Must be at most " + fe.Param()
	case "uuid":
		return "Invalid UUID format"
	case "url":
		return "Invalid URL format"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gt":
		return "Must be greater than " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	case "slug":
		return "Must contain only lowercase letters, numbers and single hyphens"
	case "selector":
		return "Must be tag, #id, .class, tag#id or tag.class"
	default:
		return "Invalid value"
	}
}
