/*
 * Copyright 2024 The Redline Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package validation provides validation functions for configuration and
// user-provided values such as document keys.
package validation

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// NOTE: regular expression is referenced unreserved characters
// (https://datatracker.ietf.org/doc/html/rfc3986#section-2.3). Document keys
// travel as a URL path segment, so they are restricted to this set.
const docKeyRegexString = `^[a-zA-Z0-9\-._~]+$`

var docKeyRegex = regexp.MustCompile(docKeyRegexString)

var (
	// defaultValidator is the validation instance used across this package.
	defaultValidator = validator.New()

	// defaultEn is the default translator instance for the 'en' locale.
	defaultEn = en.New()

	// uni is the UniversalTranslator instance set with the fallback locale
	// and locales it should support.
	uni = ut.New(defaultEn, defaultEn)

	// trans is the specified translator for the given locale, or fallback
	// if not found.
	trans, _ = uni.GetTranslator(defaultEn.Locale())
)

// Violation is the error returned by the validation.
type Violation struct {
	Tag         string
	Field       string
	Err         error
	Description string
}

// Error returns the error message.
func (e Violation) Error() string {
	return e.Err.Error()
}

// StructError is the error returned by ValidateStruct.
type StructError struct {
	Violations []Violation
}

// Error returns the error message.
func (s StructError) Error() string {
	var sb strings.Builder
	for i, v := range s.Violations {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.Description)
	}
	return sb.String()
}

// ValidateStruct validates the given struct against its validate tags.
func ValidateStruct(v interface{}) error {
	if err := defaultValidator.Struct(v); err != nil {
		invalid, ok := err.(*validator.InvalidValidationError)
		if ok {
			return fmt.Errorf("validate struct: %w", invalid)
		}

		structError := StructError{}
		for _, e := range err.(validator.ValidationErrors) {
			structError.Violations = append(structError.Violations, Violation{
				Tag:         e.Tag(),
				Field:       e.Field(),
				Err:         e,
				Description: e.Translate(trans),
			})
		}
		return structError
	}

	return nil
}

// ValidateDocKey validates the format of the given document key.
func ValidateDocKey(key string) error {
	if !docKeyRegex.MatchString(key) {
		return fmt.Errorf("document key %q: must contain only URL-safe characters", key)
	}
	return nil
}

func registerValidation(tag string, fn validator.Func) {
	if err := defaultValidator.RegisterValidation(tag, fn); err != nil {
		fmt.Fprintln(os.Stderr, "validation: register:", err)
		os.Exit(1)
	}
}

func registerTranslation(tag, msg string) {
	if err := defaultValidator.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, msg, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, err := ut.T(tag, fe.Field())
			if err != nil {
				return fe.(error).Error()
			}
			return t
		},
	); err != nil {
		fmt.Fprintln(os.Stderr, "validation: register translation:", err)
		os.Exit(1)
	}
}

func init() {
	if err := entranslations.RegisterDefaultTranslations(defaultValidator, trans); err != nil {
		fmt.Fprintln(os.Stderr, "validation: register default translations:", err)
		os.Exit(1)
	}

	registerValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	registerTranslation("duration", "{0} must be a valid time duration string")
}
