package validator

import (
	"errors"
	"fmt"
	"strings"

	"fanline/pkg/logger"
	"fanline/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type StockValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewStockValidator(log *logger.Logger) *StockValidator {
	v := validator.New()

	log.Info("Stock validator initialized successfully")

	return &StockValidator{
		validate: v,
		logger:   log,
	}
}

func (v *StockValidator) ValidateResource(resource *model.Resource) error {
	if err := v.validate.Struct(resource); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	return nil
}

func (v *StockValidator) ValidateUnit(unit *model.StockUnit) error {
	if err := v.validate.Struct(unit); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	if unit.Stock > unit.Capacity {
		return ValidationErrors{
			ValidationError{
				Field:   "Stock",
				Message: fmt.Sprintf("initial stock (%d) exceeds capacity (%d)", unit.Stock, unit.Capacity),
			},
		}
	}
	if unit.Stock < 0 {
		return ValidationErrors{
			ValidationError{
				Field:   "Stock",
				Message: "initial stock cannot be negative",
			},
		}
	}

	return nil
}

// MutationRequest covers the reserve/release/correct request bodies.
type MutationRequest struct {
	Quantity   int    `json:"quantity" validate:"omitempty,min=1,max=1000"`
	NewStock   *int   `json:"new_stock,omitempty" validate:"omitempty,min=0"`
	OrderRef   string `json:"order_ref,omitempty" validate:"omitempty,max=120"`
	Reason     string `json:"reason,omitempty" validate:"omitempty,oneof=restock return cancellation damage manual_correction"`
	OperatorID string `json:"operator_id,omitempty" validate:"omitempty,max=120"`
}

func (v *StockValidator) ValidateMutation(req *MutationRequest) error {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *StockValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
