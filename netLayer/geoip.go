package netLayer

import (
	"net"
	"os"

	"github.com/driftline/driftline/utils"
	"github.com/oschwald/maxminddb-golang"
	"go.uber.org/zap"
)

var the_geoipdb *maxminddb.Reader

func LoadMaxmindGeoipBytes(bs []byte) error {
	db, err := maxminddb.FromBytes(bs)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "load maxmind geoip failed", ErrDetail: err}
	}
	the_geoipdb = db
	return nil
}

// 将一个外部的mmdb文件加载为我们默认的 geoip 数据库。
func LoadMaxmindGeoipFile(fn string) error {
	bs, err := os.ReadFile(fn)
	if err != nil {
		return utils.ErrInErr{ErrDesc: "read geoip file failed", ErrDetail: err, Data: fn}
	}
	return LoadMaxmindGeoipBytes(bs)
}

func HasGeoipLoaded() bool {
	return the_geoipdb != nil
}

// 使用默认的 geoip 数据库，会调用 GetIP_ISO_byReader
func GetIP_ISO(ip net.IP) string {
	if the_geoipdb == nil {
		return ""
	}
	return GetIP_ISO_byReader(the_geoipdb, ip)
}

// 返回 iso 3166 字符串， 见 https://dev.maxmind.com/geoip/legacy/codes?lang=en ，大写，两字节
func GetIP_ISO_byReader(db *maxminddb.Reader, ip net.IP) string {

	var record struct {
		Country struct {
			ISOCode string `maxminddb:"iso_code"`
		} `maxminddb:"country"`
	}

	err := db.Lookup(ip, &record)
	if err != nil {

		if ce := utils.CanLogErr("GetIP_ISO_byReader db.Lookup err"); ce != nil {
			ce.Write(zap.Error(err))
		}

		return ""
	}
	return record.Country.ISOCode
}
