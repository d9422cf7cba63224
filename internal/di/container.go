package di

import (
	"go.uber.org/dig"
)

// NewContainer 创建依赖注入容器并注册所有提供者
func NewContainer() (*dig.Container, error) {
	container := dig.New()
	if err := RegisterProviders(container); err != nil {
		return nil, err
	}
	return container, nil
}
