// Package validation 负责请求体解码与字段校验。
//
// 校验复用 gin 的 binding 引擎（go-playground/validator），字段名取 json 标签，
// 错误消息按字段聚合，便于直接作为 422 响应的 errors 返回。
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"
	"time"

	"todopro/internal/pkg/apperr"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Normalizer 由请求结构体实现，在校验前清洗输入（去空白、小写等）。
type Normalizer interface {
	Normalize()
}

// DateLayouts 是 due_date 接受的格式，按顺序尝试。
var DateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var setupOnce sync.Once

// Setup 配置 gin 的校验引擎：注册 json 字段名与自定义规则。可重复调用。
func Setup() {
	setupOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
			_, err := ParseDate(fl.Field().String())
			return err == nil
		})
		// NullableString 按其内部字符串校验，null 或缺失时视为空值。
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if n, ok := field.Interface().(NullableString); ok && n.Value != nil {
				return *n.Value
			}
			return nil
		}, NullableString{})
	})
}

// NullableString 区分 JSON 中"字段缺失"、"显式 null"与"字符串值"。
type NullableString struct {
	Set   bool    // 请求中出现了该字段
	Value *string // null 时为 nil
}

// UnmarshalJSON 实现 json.Unmarshaler。
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// TrimToNull 去掉首尾空白，空串转为 null。
func (n *NullableString) TrimToNull() {
	n.Value = TrimToNull(n.Value)
}

// TrimToNull 去掉首尾空白，空串返回 nil。
func TrimToNull(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// ParseDate 按 DateLayouts 解析日期，不带时区的格式按 UTC 处理。
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range DateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}

// BindJSON 解码请求体到 dst，执行 Normalize 后校验。
//
// 空请求体视为 {}；语法错误或多余的尾随内容返回 apperr.ErrInvalidJSON；类型不符与规则不满足返回 Validation 错误。
func BindJSON(body io.Reader, dst any) error {
	Setup()
	if body != nil {
		dec := json.NewDecoder(body)
		err := dec.Decode(dst)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) && typeErr.Field != "" {
				return apperr.FieldError(typeErr.Field, fmt.Sprintf("The %s field has an invalid type.", displayName(typeErr.Field)))
			}
			return apperr.ErrInvalidJSON
		default:
			// 请求体只能包含一个 JSON 值。
			var extra json.RawMessage
			if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
				return apperr.ErrInvalidJSON
			}
		}
	}
	if n, ok := dst.(Normalizer); ok {
		n.Normalize()
	}
	return Struct(dst)
}

// Struct 校验结构体，返回聚合了字段消息的 Validation 错误。
func Struct(obj any) error {
	Setup()
	err := binding.Validator.ValidateStruct(obj)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Unexpected("", err)
	}
	fields := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = append(fields[fe.Field()], Message(fe))
	}
	return apperr.Validation(firstMessage(verrs), fields)
}

func firstMessage(verrs validator.ValidationErrors) string {
	msg := Message(verrs[0])
	if extra := len(verrs) - 1; extra > 0 {
		plural := "error"
		if extra > 1 {
			plural = "errors"
		}
		msg = fmt.Sprintf("%s (and %d more %s)", msg, extra, plural)
	}
	return msg
}

// Message 将单个字段错误翻译为英文提示。
func Message(fe validator.FieldError) string {
	name := displayName(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", name)
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", name)
	case "min":
		if fe.Kind() == reflect.String {
			if fe.Param() == "1" {
				return fmt.Sprintf("The %s field is required.", name)
			}
			return fmt.Sprintf("The %s field must be at least %s characters.", name, fe.Param())
		}
		return fmt.Sprintf("The %s field must be at least %s.", name, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("The %s field must not be greater than %s characters.", name, fe.Param())
		}
		return fmt.Sprintf("The %s field must not be greater than %s.", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("The selected %s is invalid.", name)
	case "eqfield":
		return fmt.Sprintf("The %s field confirmation does not match.", name)
	case "date":
		return fmt.Sprintf("The %s field must be a valid date.", name)
	}
	return fmt.Sprintf("The %s field is invalid.", name)
}

func displayName(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
