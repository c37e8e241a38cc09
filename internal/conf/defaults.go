// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "SawCall-Go")
	viper.SetDefault("main.facility", "")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "sawcall.log")

	viper.SetDefault("scheduler.pollinterval", 10)
	viper.SetDefault("scheduler.idlecycles", 3)
	viper.SetDefault("scheduler.retrycooldown", 3600)
	viper.SetDefault("scheduler.retrywindowdays", 7)
	viper.SetDefault("scheduler.retrybatchsize", 5)
	viper.SetDefault("scheduler.stoptimeout", 30)
	viper.SetDefault("scheduler.processingjitter", 0)

	viper.SetDefault("processing.temppath", "temp/")
	viper.SetDefault("processing.contentionretries", 3)
	viper.SetDefault("processing.contentiondelay", 1000)
	viper.SetDefault("processing.speciesprefixes", []string{"amur_leopard", "amur_tiger"})
	viper.SetDefault("processing.spectrogramenabled", true)
	viper.SetDefault("processing.reportenabled", true)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "sawcall.db")

	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "sawcall")
	viper.SetDefault("output.mysql.password", "sawcall")
	viper.SetDefault("output.mysql.database", "sawcall")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
}
