// Package api 对外暴露 REST 接口：同步标注、异步批量任务与历史查询。
package api
