package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// storageField 拼接 Storage[s0].Field 形式的路径。
func storageField(id, field string) string {
	return fmt.Sprintf("Storage[%s].%s", id, field)
}

// repositoryField 拼接 Storage[s0].Repository[central].Field 形式的路径。
func repositoryField(storage, repo, field string) string {
	return fmt.Sprintf("Storage[%s].Repository[%s].%s", storage, repo, field)
}

// ruleField 以声明顺序定位路由规则。
func ruleField(idx int, field string) string {
	return fmt.Sprintf("RoutingRule[%d].%s", idx, field)
}
